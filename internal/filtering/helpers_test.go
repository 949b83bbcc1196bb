package filtering

import "github.com/spigell/cv-ranker/internal/cv"

func newSource(name string) *cv.Source {
	return &cv.Source{Path: "/cvs/" + name, Filename: name}
}
