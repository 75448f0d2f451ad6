package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"calendly/internal/model"
	"calendly/internal/schedule"
)

// WindowConfig is one weekly availability window.
type WindowConfig struct {
	Day   string `yaml:"day"`   // "monday" or "mon"
	Start string `yaml:"start"` // "09:00"
	End   string `yaml:"end"`   // "17:00", "24:00" for end of day
}

// EventConfig is a bookable event type of an owner.
type EventConfig struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	DurationMinutes int    `yaml:"duration_minutes"`
	IsActive        *bool  `yaml:"is_active,omitempty"`
}

// OwnerConfig declares the schedule and events of one owner.
type OwnerConfig struct {
	ID       string         `yaml:"id"`
	Timezone string         `yaml:"timezone"`
	Windows  []WindowConfig `yaml:"windows"`
	Events   []EventConfig  `yaml:"events"`
}

// DefaultsConfig is applied to owners that leave a field empty.
type DefaultsConfig struct {
	Timezone string         `yaml:"timezone"`
	Windows  []WindowConfig `yaml:"windows"`
}

// SchedulesConfig is the root of schedules.yaml.
type SchedulesConfig struct {
	Owners   []OwnerConfig  `yaml:"owners"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// LoadSchedulesConfig loads and validates schedules.yaml.
func LoadSchedulesConfig(path string) (*SchedulesConfig, error) {
	if path == "" {
		path = "configs/schedules.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedules config: %w", err)
	}

	var cfg SchedulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse schedules config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate schedules config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *SchedulesConfig) Validate() error {
	if len(c.Owners) == 0 {
		return fmt.Errorf("no owners defined")
	}

	owners := make(map[string]bool)
	events := make(map[string]bool)

	for i, o := range c.Owners {
		if strings.TrimSpace(o.ID) == "" {
			return fmt.Errorf("owner[%d]: id is required", i)
		}
		if owners[o.ID] {
			return fmt.Errorf("owner[%d]: duplicate id '%s'", i, o.ID)
		}
		owners[o.ID] = true

		if _, err := o.Schedule(); err != nil {
			return fmt.Errorf("owner[%d]: %w", i, err)
		}

		for j, e := range o.Events {
			if _, err := uuid.Parse(e.ID); err != nil {
				return fmt.Errorf("owner[%d].events[%d]: id must be a UUID, got '%s'", i, j, e.ID)
			}
			if events[e.ID] {
				return fmt.Errorf("owner[%d].events[%d]: duplicate id %s", i, j, e.ID)
			}
			events[e.ID] = true

			ev := e.Event(o.ID)
			if err := ev.Validate(); err != nil {
				return fmt.Errorf("owner[%d].events[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// applyDefaults fills owners without timezone or windows.
func (c *SchedulesConfig) applyDefaults() {
	for i := range c.Owners {
		if c.Owners[i].Timezone == "" {
			c.Owners[i].Timezone = c.Defaults.Timezone
		}
		if len(c.Owners[i].Windows) == 0 {
			c.Owners[i].Windows = c.Defaults.Windows
		}
	}
}

// Schedule converts the owner's windows into a validated schedule.
func (o OwnerConfig) Schedule() (*schedule.Schedule, error) {
	s := &schedule.Schedule{OwnerID: o.ID, Timezone: o.Timezone}
	for k, w := range o.Windows {
		win, err := schedule.ParseWindow(w.Day, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("windows[%d]: %w", k, err)
		}
		s.Availabilities = append(s.Availabilities, win)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Event converts the config into a model event. Events are active unless disabled.
func (e EventConfig) Event(ownerID string) model.Event {
	active := true
	if e.IsActive != nil {
		active = *e.IsActive
	}
	return model.Event{
		ID:              e.ID,
		OwnerID:         ownerID,
		Name:            e.Name,
		Description:     e.Description,
		DurationMinutes: e.DurationMinutes,
		IsActive:        active,
	}
}

// GetOwner returns the owner config by id.
func (c *SchedulesConfig) GetOwner(id string) *OwnerConfig {
	for i := range c.Owners {
		if c.Owners[i].ID == id {
			return &c.Owners[i]
		}
	}
	return nil
}

// String returns a summary of the configuration.
func (c *SchedulesConfig) String() string {
	events := 0
	for _, o := range c.Owners {
		events += len(o.Events)
	}
	return fmt.Sprintf("SchedulesConfig: %d owners, %d events", len(c.Owners), events)
}
