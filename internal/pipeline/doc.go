// Package pipeline реализует последовательное выполнение многошаговых
// pipelines: запуск, продвижение по шагам, накопление контекста,
// delay-окна и каскад skipped при падении шага.
package pipeline
