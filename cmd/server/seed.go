package main

import (
	"context"
	"fmt"
	"log"

	"github.com/Hero472/bdnsql/internal/repository"
)

var sampleCourses = []struct {
	name, description, topic string
}{
	{"Mastering Rust Programming", "Ownership, traits and fearless concurrency.", "Rust"},
	{"Mastering JavaScript Programming", "From closures to async iteration.", "JavaScript"},
}

// seedCourses inserts the sample courses, each with three units of two classes.
func seedCourses(ctx context.Context, repo *repository.Repository, logger *log.Logger) error {
	for _, sc := range sampleCourses {
		params := repository.CourseCreateParams{
			Name:        sc.name,
			Description: sc.description,
			Image:       "https://example.com/img/" + sc.topic + ".png",
			ImageBanner: "https://example.com/img/" + sc.topic + "-banner.png",
		}
		for u := 1; u <= 3; u++ {
			unit := repository.UnitParams{Name: fmt.Sprintf("%s Unit %d", sc.topic, u)}
			for c := 1; c <= 2; c++ {
				unit.Classes = append(unit.Classes, repository.ClassParams{
					Name:        fmt.Sprintf("%s Class %d.%d", sc.topic, u, c),
					Description: fmt.Sprintf("Lesson %d of unit %d", c, u),
					Video:       fmt.Sprintf("https://example.com/video/%s/%d/%d", sc.topic, u, c),
					Tutor:       "tutor@example.com",
				})
			}
			params.Units = append(params.Units, unit)
		}

		course, err := repo.Catalog.CreateCourse(ctx, params)
		if err != nil {
			return fmt.Errorf("create %q: %w", sc.name, err)
		}
		logger.Printf("seeded course %s (%s)", course.Name, course.ID)
	}
	return nil
}
