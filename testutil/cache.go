package testutil

import (
	"context"
	"sync"

	"github.com/trezcool/mahudhurio/core/attendance"
)

// MemCache is an in-memory attendance.Cache counting the summaries it stores per month.
type MemCache struct {
	mu          sync.Mutex
	versions    map[string]int64
	classes     map[string]attendance.ClassSummary
	students    map[string]map[string]attendance.StudentSummary // month -> student ID -> summary
	classSets   map[string]int
	studentSets map[string]int
}

var _ attendance.Cache = (*MemCache)(nil)

func NewMemCache() *MemCache {
	return &MemCache{
		versions:    make(map[string]int64),
		classes:     make(map[string]attendance.ClassSummary),
		students:    make(map[string]map[string]attendance.StudentSummary),
		classSets:   make(map[string]int),
		studentSets: make(map[string]int),
	}
}

// ClassSets returns how many class summaries of the month (YYYY-MM) were stored.
func (c *MemCache) ClassSets(month string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classSets[month]
}

// StudentSets returns how many student summaries of the month (YYYY-MM) were stored.
func (c *MemCache) StudentSets(month string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.studentSets[month]
}

func (c *MemCache) MonthVersion(_ context.Context, month attendance.Month) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[month.String()], nil
}

func (c *MemCache) GetClassSummary(_ context.Context, month attendance.Month) (attendance.ClassSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.classes[month.String()]
	return s, ok, nil
}

func (c *MemCache) SetClassSummary(_ context.Context, month attendance.Month, version int64, summary attendance.ClassSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := month.String()
	if c.versions[key] != version {
		return nil
	}
	c.classes[key] = summary
	c.classSets[key]++
	return nil
}

func (c *MemCache) GetStudentSummary(_ context.Context, studentID string, month attendance.Month) (attendance.StudentSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.students[month.String()][studentID]
	return s, ok, nil
}

func (c *MemCache) SetStudentSummary(_ context.Context, month attendance.Month, version int64, summary attendance.StudentSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := month.String()
	if c.versions[key] != version {
		return nil
	}
	if c.students[key] == nil {
		c.students[key] = make(map[string]attendance.StudentSummary)
	}
	c.students[key][summary.StudentID] = summary
	c.studentSets[key]++
	return nil
}

func (c *MemCache) InvalidateMonths(_ context.Context, months ...attendance.Month) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range months {
		key := m.String()
		c.versions[key]++
		delete(c.classes, key)
		delete(c.students, key)
	}
	return nil
}
