package store

import (
	"context"
	"testing"
)

func TestQuestionTemplateRoundTripWithoutCache(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	questions := []Question{
		{Prompt: "Template Q1", Options: [4]string{"a", "b", "c", "d"}, CorrectOption: 0, TimeLimitSec: 20},
		{Prompt: "Template Q2", Options: [4]string{"e", "f", "g", "h"}, CorrectOption: 3, TimeLimitSec: 25},
	}

	if err := st.PutQuestionTemplate(ctx, "geography", questions); err != nil {
		t.Fatalf("PutQuestionTemplate unexpected error: %v", err)
	}

	got, err := st.GetQuestionTemplate(ctx, "geography")
	if err != nil {
		t.Fatalf("GetQuestionTemplate unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Prompt != "Template Q1" || got[1].Prompt != "Template Q2" {
		t.Fatalf("GetQuestionTemplate = %+v, want the stored template in order", got)
	}
}

func TestQuestionTemplateReplaceOverwritesPriorSet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	st.PutQuestionTemplate(ctx, "science", []Question{
		{Prompt: "Old", Options: [4]string{"a", "b", "c", "d"}, CorrectOption: 0, TimeLimitSec: 20},
	})
	st.PutQuestionTemplate(ctx, "science", []Question{
		{Prompt: "New", Options: [4]string{"a", "b", "c", "d"}, CorrectOption: 0, TimeLimitSec: 20},
	})

	got, err := st.GetQuestionTemplate(ctx, "science")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Prompt != "New" {
		t.Fatalf("GetQuestionTemplate after replace = %+v, want only the new question", got)
	}
}

func TestQuestionTemplateUnknownCategoryReturnsNilNotError(t *testing.T) {
	st := newTestStore(t)
	questions, err := st.GetQuestionTemplate(context.Background(), "never-created")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if questions != nil {
		t.Fatalf("GetQuestionTemplate = %+v, want nil for a missing template", questions)
	}
}
