package arena

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/heartline/matchqueue/pkg/types"
	"gopkg.in/yaml.v3"
)

type Schedule struct {
	arenas []Arena
	byID   map[string]Arena
}

func NewSchedule(arenas ...Arena) (*Schedule, error) {
	s := &Schedule{byID: make(map[string]Arena, len(arenas))}
	for _, a := range arenas {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if a.ID == types.GlobalPool {
			return nil, fmt.Errorf("arena id %q is reserved", a.ID)
		}
		if _, dup := s.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate arena id %q", a.ID)
		}
		s.arenas = append(s.arenas, a)
		s.byID[a.ID] = a
	}
	return s, nil
}

func (s *Schedule) All() []Arena {
	out := make([]Arena, len(s.arenas))
	copy(out, s.arenas)
	return out
}

func (s *Schedule) Get(id string) (Arena, error) {
	a, ok := s.byID[id]
	if !ok {
		return Arena{}, ErrNotFound
	}
	return a, nil
}

// Active returns the arenas whose window contains now.
func (s *Schedule) Active(now time.Time) []Arena {
	var out []Arena
	for _, a := range s.arenas {
		if a.IsActive(now) {
			out = append(out, a)
		}
	}
	return out
}

// Defaults is used when no arenas file is configured.
func Defaults() *Schedule {
	s, _ := NewSchedule(
		Arena{ID: "friday-night", Name: "Friday Night Arena", Weekday: time.Friday, Hour: 20, Duration: 2 * time.Hour, Location: time.UTC},
		Arena{ID: "sunday-brunch", Name: "Sunday Brunch Arena", Weekday: time.Sunday, Hour: 11, Duration: 90 * time.Minute, Location: time.UTC},
	)
	return s
}

type fileArena struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Weekday  string `yaml:"weekday"`
	Start    string `yaml:"start"`
	Duration string `yaml:"duration"`
	Timezone string `yaml:"timezone"`
}

type file struct {
	Arenas []fileArena `yaml:"arenas"`
}

// LoadFile reads arena definitions from a YAML file.
func LoadFile(path string) (*Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read arenas file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Schedule, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse arenas: %w", err)
	}
	arenas := make([]Arena, 0, len(f.Arenas))
	for i, fa := range f.Arenas {
		a, err := fa.toArena()
		if err != nil {
			return nil, fmt.Errorf("arena #%d: %w", i, err)
		}
		arenas = append(arenas, a)
	}
	return NewSchedule(arenas...)
}

func (fa fileArena) toArena() (Arena, error) {
	wd, err := parseWeekday(fa.Weekday)
	if err != nil {
		return Arena{}, err
	}
	start, err := time.Parse("15:04", strings.TrimSpace(fa.Start))
	if err != nil {
		return Arena{}, fmt.Errorf("invalid start %q: %w", fa.Start, err)
	}
	dur, err := time.ParseDuration(strings.TrimSpace(fa.Duration))
	if err != nil {
		return Arena{}, fmt.Errorf("invalid duration %q: %w", fa.Duration, err)
	}
	loc := time.UTC
	if tz := strings.TrimSpace(fa.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return Arena{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
	}
	name := fa.Name
	if name == "" {
		name = fa.ID
	}
	return Arena{
		ID:       strings.TrimSpace(fa.ID),
		Name:     name,
		Weekday:  wd,
		Hour:     start.Hour(),
		Minute:   start.Minute(),
		Duration: dur,
		Location: loc,
	}, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, errors.New("weekday is required")
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}
