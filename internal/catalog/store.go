package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bosqueabierto/mtbmap/pkg/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TrailRow is the database representation of a trail record.
// Position keeps catalog order.
type TrailRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	Position    int    `gorm:"index"`
	Name        string `gorm:"size:255"`
	Discipline  string `gorm:"size:8"`
	Club        string `gorm:"size:255"`
	Difficulty  string `gorm:"size:16"`
	DistanceKm  float64
	Ascent      int
	Descent     int
	Location    string `gorm:"size:128"`
	Region      string `gorm:"size:128"`
	ArchivePath string `gorm:"size:512"`
	ExportPath  string `gorm:"size:512"`
	StartCoords datatypes.JSON
}

func (TrailRow) TableName() string {
	return "trails"
}

func rowFromRecord(pos int, t core.TrailRecord) (TrailRow, error) {
	row := TrailRow{
		ID:          t.ID,
		Position:    pos,
		Name:        t.Name,
		Discipline:  string(t.Discipline),
		Club:        t.Club,
		Difficulty:  string(t.Difficulty),
		DistanceKm:  t.DistanceKm,
		Ascent:      t.Ascent,
		Descent:     t.Descent,
		Location:    t.Location,
		Region:      t.Region,
		ArchivePath: t.ArchivePath,
		ExportPath:  t.ExportPath,
	}
	if t.StartCoords != nil {
		b, err := json.Marshal(t.StartCoords)
		if err != nil {
			return TrailRow{}, err
		}
		row.StartCoords = datatypes.JSON(b)
	}
	return row, nil
}

func (r TrailRow) record() (core.TrailRecord, error) {
	t := core.TrailRecord{
		ID:          r.ID,
		Name:        r.Name,
		Discipline:  core.Discipline(r.Discipline),
		Club:        r.Club,
		Difficulty:  core.Difficulty(r.Difficulty),
		DistanceKm:  r.DistanceKm,
		Ascent:      r.Ascent,
		Descent:     r.Descent,
		Location:    r.Location,
		Region:      r.Region,
		ArchivePath: r.ArchivePath,
		ExportPath:  r.ExportPath,
	}
	if len(r.StartCoords) > 0 && string(r.StartCoords) != "null" {
		if err := json.Unmarshal(r.StartCoords, &t.StartCoords); err != nil {
			return core.TrailRecord{}, fmt.Errorf("%s: %w: %v", r.ID, ErrInvalidStart, err)
		}
	}
	return t, nil
}

// Store persists the catalog in a SQL table through gorm.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the trails table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&TrailRow{}); err != nil {
		return fmt.Errorf("failed to migrate trails table: %w", err)
	}
	return nil
}

// Save replaces the stored catalog with c in a single transaction.
func (s *Store) Save(ctx context.Context, c *Catalog) error {
	rows := make([]TrailRow, 0, c.Len())
	for i, t := range c.trails {
		row, err := rowFromRecord(i, t)
		if err != nil {
			return fmt.Errorf("%s: %w", t.ID, err)
		}
		rows = append(rows, row)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&TrailRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear trails: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert trails: %w", err)
		}
		return nil
	})
}

// Load reads the stored catalog in position order and validates it.
func (s *Store) Load(ctx context.Context) (*Catalog, error) {
	var rows []TrailRow
	if err := s.db.WithContext(ctx).Order("position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read trails: %w", err)
	}
	trails := make([]core.TrailRecord, 0, len(rows))
	for _, r := range rows {
		t, err := r.record()
		if err != nil {
			return nil, err
		}
		trails = append(trails, t)
	}
	return New(trails)
}
