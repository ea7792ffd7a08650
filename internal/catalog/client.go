package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/learnhub/payment-reconciler/internal/interfaces"
	"github.com/learnhub/payment-reconciler/internal/models"
)

// Client looks up courses from the catalog service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetCourse(ctx context.Context, courseID string) (*interfaces.Course, error) {
	endpoint := fmt.Sprintf("%s/courses/%s", c.baseURL, url.PathEscape(courseID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrUnknownCourse
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned %d", resp.StatusCode)
	}

	var course interfaces.Course
	if err := json.NewDecoder(resp.Body).Decode(&course); err != nil {
		return nil, fmt.Errorf("decoding course: %w", err)
	}
	return &course, nil
}

// InMemory serves a fixed course set; used by tests and local runs.
type InMemory struct {
	mu      sync.RWMutex
	courses map[string]interfaces.Course
}

func NewInMemory() *InMemory {
	return &InMemory{courses: make(map[string]interfaces.Course)}
}

func (m *InMemory) Add(course interfaces.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[course.ID] = course
}

func (m *InMemory) GetCourse(_ context.Context, courseID string) (*interfaces.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	course, ok := m.courses[courseID]
	if !ok {
		return nil, models.ErrUnknownCourse
	}
	return &course, nil
}
