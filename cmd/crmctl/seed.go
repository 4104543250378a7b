package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/logger"
	"enrollment-crm/services"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML catalog loaded by `crmctl seed`.
type SeedFile struct {
	Courses []services.CourseInput `yaml:"courses"`
	Users   []services.UserInput   `yaml:"users"`
}

// SeedResult counts what a seed run changed.
type SeedResult struct {
	CoursesCreated int
	CoursesSkipped int
	UsersCreated   int
	UsersSkipped   int
}

func (r SeedResult) String() string {
	return fmt.Sprintf("courses: %d created, %d skipped; users: %d created, %d skipped",
		r.CoursesCreated, r.CoursesSkipped, r.UsersCreated, r.UsersSkipped)
}

func parseSeed(r io.Reader) (SeedFile, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if err == io.EOF {
			return SeedFile{}, nil
		}
		return SeedFile{}, fmt.Errorf("parsing seed file: %w", err)
	}
	return seed, nil
}

// applySeed creates the courses and users that do not exist yet. Courses
// match by name, users by email, so running it twice is harmless.
func applySeed(ctx context.Context, courses *services.CourseService, team *services.TeamService, seed SeedFile) (SeedResult, error) {
	var res SeedResult

	existing, err := courses.List(ctx, false)
	if err != nil {
		return res, err
	}
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[strings.ToLower(strings.TrimSpace(c.Name))] = true
	}

	for _, in := range seed.Courses {
		key := strings.ToLower(strings.TrimSpace(in.Name))
		if known[key] {
			res.CoursesSkipped++
			continue
		}
		if _, err := courses.Create(ctx, in); err != nil {
			return res, fmt.Errorf("course %q: %w", in.Name, err)
		}
		known[key] = true
		res.CoursesCreated++
	}

	for _, in := range seed.Users {
		_, err := team.Create(ctx, in)
		switch {
		case err == nil:
			res.UsersCreated++
		case apperrors.IsKind(err, apperrors.Conflict):
			logger.Debug("User %s already exists, skipping", in.Email)
			res.UsersSkipped++
		default:
			return res, fmt.Errorf("user %q: %w", in.Email, err)
		}
	}
	return res, nil
}
