// File: internal/store/templates.go
// Quiz Engine - Persistence Store: question template bank

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// templateCacheTTL bounds how long a cached template can drift from the
// store before a read falls back to the database.
const templateCacheTTL = 10 * time.Minute

// GetQuestionTemplate loads a category's reusable question set. If a
// Redis cache is attached, it is checked first; a miss falls through to
// the database and repopulates the cache. Returns (nil, nil), not an
// error, for a category with no stored template, same convention as
// GetGameByPin.
func (s *Store) GetQuestionTemplate(ctx context.Context, category string) ([]Question, error) {
	if s.cache != nil {
		if questions, ok := s.getTemplateFromCache(ctx, category); ok {
			return questions, nil
		}
	}

	questions, err := s.getTemplateFromDB(category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question template: %w", err)
	}

	if s.cache != nil && questions != nil {
		s.putTemplateInCache(ctx, category, questions)
	}
	return questions, nil
}

// PutQuestionTemplate atomically replaces a category's question set in
// the store and, if enabled, the cache.
func (s *Store) PutQuestionTemplate(ctx context.Context, category string, questions []Question) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin put template tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM question_templates WHERE category = %s`, s.placeholder(1)), category); err != nil {
		return fmt.Errorf("delete old template rows: %w", err)
	}

	for i, q := range questions {
		_, err := tx.Exec(fmt.Sprintf(
			`INSERT INTO question_templates (category, order_index, prompt, option_0, option_1, option_2, option_3, correct_option, time_limit_sec)
			 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
			s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
			s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9)),
			category, i, q.Prompt, q.Options[0], q.Options[1], q.Options[2], q.Options[3], q.CorrectOption, q.TimeLimitSec)
		if err != nil {
			return fmt.Errorf("insert template question %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put template tx: %w", err)
	}

	if s.cache != nil {
		s.putTemplateInCache(ctx, category, questions)
	}
	return nil
}

func (s *Store) getTemplateFromDB(category string) ([]Question, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT order_index, prompt, option_0, option_1, option_2, option_3, correct_option, time_limit_sec
		 FROM question_templates WHERE category = %s ORDER BY order_index ASC`, s.placeholder(1)), category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.OrderIndex, &q.Prompt, &q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3],
			&q.CorrectOption, &q.TimeLimitSec); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if questions == nil {
		return nil, sql.ErrNoRows
	}
	return questions, nil
}

func (s *Store) getTemplateFromCache(ctx context.Context, category string) ([]Question, bool) {
	raw, err := s.cache.Get(ctx, templateCacheKey(category)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("Warning: template cache get failed for %q: %v", category, err)
		return nil, false
	}

	var questions []Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		log.Printf("Warning: template cache decode failed for %q: %v", category, err)
		return nil, false
	}
	return questions, true
}

func (s *Store) putTemplateInCache(ctx context.Context, category string, questions []Question) {
	raw, err := json.Marshal(questions)
	if err != nil {
		log.Printf("Warning: template cache encode failed for %q: %v", category, err)
		return
	}
	if err := s.cache.Set(ctx, templateCacheKey(category), raw, templateCacheTTL).Err(); err != nil {
		log.Printf("Warning: template cache set failed for %q: %v", category, err)
	}
}

func templateCacheKey(category string) string {
	return "quiz:template:" + category
}
