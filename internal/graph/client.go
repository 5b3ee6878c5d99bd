// Package graph writes derived relationships (ratings, comment authorship) to
// a Neo4j graph. Writes are one-way; nothing in the service reads them back.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrRejected is returned when Neo4j answers 2xx but reports statement errors.
var ErrRejected = errors.New("graph: statement rejected")

// RatingEdge is a User -RATED-> Course relationship.
type RatingEdge struct {
	UserEmail string
	CourseID  string
	Rating    float64
	At        time.Time
}

// CommentEdge is a User -POSTED-> Comment relationship.
type CommentEdge struct {
	UserEmail     string
	CommentID     string
	Title         string
	Detail        string
	ReferenceID   string
	ReferenceType string
	At            time.Time
}

// Mirror defines the contract for recording derived edges.
type Mirror interface {
	RecordRating(ctx context.Context, edge RatingEdge) error
	RecordComment(ctx context.Context, edge CommentEdge) error
}

// Noop discards every edge. It is used when no graph is configured.
type Noop struct{}

func (Noop) RecordRating(context.Context, RatingEdge) error   { return nil }
func (Noop) RecordComment(context.Context, CommentEdge) error { return nil }

const (
	rateStatement = `MERGE (u:User {email: $email})
MERGE (c:Course {id: $course_id})
CREATE (u)-[:RATED {rating: $rating, timestamp: $timestamp}]->(c)`

	commentStatement = `MERGE (u:User {email: $email})
CREATE (c:Comment {id: $id, title: $title, detail: $detail, reference_id: $reference_id, reference_type: $reference_type, timestamp: $timestamp})
CREATE (u)-[:POSTED]->(c)`
)

// Neo4jClient implements Mirror over the Neo4j HTTP transactional API.
type Neo4jClient struct {
	client   *resty.Client
	endpoint string
	logger   *log.Logger
}

// NewNeo4jClient constructs a client committing to {baseURL}/db/{database}/tx/commit.
func NewNeo4jClient(baseURL, database, user, password string, timeout time.Duration, logger *log.Logger) (*Neo4jClient, error) {
	if logger == nil {
		logger = log.Default()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse graph url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse graph url: %q is not absolute", baseURL)
	}
	if database == "" {
		database = "neo4j"
	}

	client := resty.New().
		SetBaseURL(parsed.String()).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if user != "" {
		client.SetBasicAuth(user, password)
	}

	return &Neo4jClient{
		client:   client,
		endpoint: "/db/" + url.PathEscape(database) + "/tx/commit",
		logger:   logger,
	}, nil
}

// RecordRating writes one RATED relationship per call; repeated ratings
// produce parallel edges.
func (c *Neo4jClient) RecordRating(ctx context.Context, edge RatingEdge) error {
	return c.commit(ctx, statement{
		Statement: rateStatement,
		Parameters: map[string]any{
			"email":     edge.UserEmail,
			"course_id": edge.CourseID,
			"rating":    edge.Rating,
			"timestamp": edge.At.UTC().Format(time.RFC3339),
		},
	})
}

// RecordComment writes a Comment node and its POSTED relationship.
func (c *Neo4jClient) RecordComment(ctx context.Context, edge CommentEdge) error {
	return c.commit(ctx, statement{
		Statement: commentStatement,
		Parameters: map[string]any{
			"email":          edge.UserEmail,
			"id":             edge.CommentID,
			"title":          edge.Title,
			"detail":         edge.Detail,
			"reference_id":   edge.ReferenceID,
			"reference_type": edge.ReferenceType,
			"timestamp":      edge.At.UTC().Format(time.RFC3339),
		},
	})
}

func (c *Neo4jClient) commit(ctx context.Context, stmts ...statement) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(commitRequest{Statements: stmts}).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("graph: commit: %w", err)
	}
	if resp.IsError() {
		c.logger.Printf("graph: unexpected status %d from %s", resp.StatusCode(), c.endpoint)
		return fmt.Errorf("graph: upstream returned %d", resp.StatusCode())
	}
	return decodeCommitResponse(resp.Body())
}

type statement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters"`
}

type commitRequest struct {
	Statements []statement `json:"statements"`
}

type commitResponse struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeCommitResponse(body []byte) error {
	var payload commitResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	if len(payload.Errors) == 0 {
		return nil
	}
	first := payload.Errors[0]
	return fmt.Errorf("%w: %s: %s", ErrRejected, first.Code, first.Message)
}
