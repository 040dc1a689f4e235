package agentfs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testFS(t *testing.T) *SessionFS {
	t.Helper()
	store := NewStore(t.TempDir())
	fs, err := store.Session("session1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	return fs
}

func TestAgentFileRoundTrip(t *testing.T) {
	fs := testFS(t)

	in := &AgentFile{
		AgentID: "researcher_1",
		Character: Character{
			Role:        "Hardware Analyst",
			Expertise:   "quantum hardware",
			Personality: "meticulous",
		},
		Preferences: "prefers primary sources",
		Todos: []Todo{
			{Title: "Survey platforms", Objective: "obj", ExpectedOutput: "list", Priority: PriorityHigh, Status: TodoPending, SourcesNeeded: []string{"vendor sites"}},
			{Title: "Check error rates", Priority: PriorityMedium, Status: TodoDone, Note: "done early"},
		},
		NoteSlugs: []string{"first-note"},
	}
	if err := fs.WriteAgentFile(in); err != nil {
		t.Fatalf("WriteAgentFile failed: %v", err)
	}

	out, err := fs.ReadAgentFile("researcher_1")
	if err != nil {
		t.Fatalf("ReadAgentFile failed: %v", err)
	}
	if out.Character.Role != "Hardware Analyst" || out.Preferences != "prefers primary sources" {
		t.Errorf("character/preferences lost: %+v", out)
	}
	if len(out.Todos) != 2 || out.Todos[0].Title != "Survey platforms" || out.Todos[1].Note != "done early" {
		t.Errorf("todos lost: %+v", out.Todos)
	}
	if len(out.NoteSlugs) != 1 || out.NoteSlugs[0] != "first-note" {
		t.Errorf("note slugs lost: %v", out.NoteSlugs)
	}
}

func TestReadAgentFileMissingReturnsEmpty(t *testing.T) {
	fs := testFS(t)
	f, err := fs.ReadAgentFile("ghost")
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if len(f.Todos) != 0 {
		t.Errorf("expected empty file, got %+v", f)
	}
}

func TestAddTodosQualifiesDuplicateTitles(t *testing.T) {
	fs := testFS(t)
	if err := fs.WriteAgentFile(&AgentFile{
		AgentID:   "researcher_1",
		Character: Character{Role: "Analyst"},
		Todos:     []Todo{{Title: "Survey platforms", Status: TodoPending}},
	}); err != nil {
		t.Fatalf("WriteAgentFile failed: %v", err)
	}

	stored, err := fs.AddTodos("researcher_1", []Todo{{Title: "Survey platforms"}})
	if err != nil {
		t.Fatalf("AddTodos failed: %v", err)
	}
	if stored[0] != "Analyst: Survey platforms" {
		t.Errorf("duplicate title not qualified: %q", stored[0])
	}

	f, _ := fs.ReadAgentFile("researcher_1")
	titles := map[string]bool{}
	for _, todo := range f.Todos {
		key := strings.ToLower(todo.Title)
		if titles[key] {
			t.Errorf("duplicate title survived: %q", todo.Title)
		}
		titles[key] = true
	}
}

func TestAddTodosDefaults(t *testing.T) {
	fs := testFS(t)
	if _, err := fs.AddTodos("a1", []Todo{{Title: "x"}}); err != nil {
		t.Fatalf("AddTodos failed: %v", err)
	}
	f, _ := fs.ReadAgentFile("a1")
	if f.Todos[0].Status != TodoPending || f.Todos[0].Priority != PriorityMedium {
		t.Errorf("defaults not applied: %+v", f.Todos[0])
	}
}

func TestUpdateAgentTodoByTitle(t *testing.T) {
	fs := testFS(t)
	if _, err := fs.AddTodos("a1", []Todo{{Title: "Collect sources"}}); err != nil {
		t.Fatalf("AddTodos failed: %v", err)
	}

	done := TodoDone
	note := "found 12 sources"
	if err := fs.UpdateAgentTodo("a1", "collect SOURCES", TodoPatch{Status: &done, Note: &note}); err != nil {
		t.Fatalf("UpdateAgentTodo failed: %v", err)
	}

	f, _ := fs.ReadAgentFile("a1")
	if f.Todos[0].Status != TodoDone || f.Todos[0].Note != note {
		t.Errorf("patch not applied: %+v", f.Todos[0])
	}
}

func TestUpdateAgentTodoMissingTitle(t *testing.T) {
	fs := testFS(t)
	done := TodoDone
	err := fs.UpdateAgentTodo("a1", "nope", TodoPatch{Status: &done})
	if !errors.Is(err, ErrTodoNotFound) {
		t.Fatalf("expected ErrTodoNotFound, got %v", err)
	}
}

func TestNextPendingPrefersPriorityThenOrder(t *testing.T) {
	f := &AgentFile{Todos: []Todo{
		{Title: "low first", Priority: PriorityLow, Status: TodoPending},
		{Title: "critical", Priority: PriorityCritical, Status: TodoPending},
		{Title: "critical later", Priority: PriorityCritical, Status: TodoPending},
		{Title: "done", Priority: PriorityCritical, Status: TodoDone},
	}}
	next := f.NextPending()
	if next == nil || next.Title != "critical" {
		t.Errorf("expected first critical todo, got %+v", next)
	}
}

func TestDraftChapterNormalization(t *testing.T) {
	fs := testFS(t)

	// Simulate an out-of-order, duplicated draft written externally.
	raw := `# Draft Report

## Chapter 3: Hardware

### Summary
hardware text

## Chapter 1: Algorithms

### Summary
algorithms text

## Chapter 2: Hardware

### Summary
duplicate hardware
`
	if err := os.WriteFile(filepath.Join(fs.Dir(), "draft_report.md"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	chapters, err := fs.ReadDraft()
	if err != nil {
		t.Fatalf("ReadDraft failed: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters after dedupe, got %d: %+v", len(chapters), chapters)
	}
	if chapters[0].Number != 1 || chapters[1].Number != 2 {
		t.Errorf("chapters not renumbered contiguously: %+v", chapters)
	}
	if chapters[0].Title != "Hardware" || chapters[1].Title != "Algorithms" {
		t.Errorf("dedupe must keep first occurrence: %+v", chapters)
	}
	if !strings.Contains(chapters[0].Content, "hardware text") {
		t.Errorf("chapter content lost: %+v", chapters[0])
	}

	// Reading twice yields the same sequence.
	again, _ := fs.ReadDraft()
	for i := range chapters {
		if chapters[i] != again[i] {
			t.Errorf("draft read is not stable: %+v vs %+v", chapters[i], again[i])
		}
	}
}

func TestWriteDraftChapterAppendAndReplace(t *testing.T) {
	fs := testFS(t)

	if err := fs.WriteDraftChapter("Algorithms", "### Summary\nfirst", WriteAppend); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := fs.WriteDraftChapter("Hardware", "### Summary\nsecond", WriteAppend); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := fs.WriteDraftChapter("algorithms", "### Summary\nrevised", WriteReplaceChapter); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	chapters, err := fs.ReadDraft()
	if err != nil {
		t.Fatalf("ReadDraft failed: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(chapters))
	}
	if !strings.Contains(chapters[0].Content, "revised") {
		t.Errorf("replace_chapter did not update content: %+v", chapters[0])
	}
}

func TestSaveNoteAndSharedNotes(t *testing.T) {
	fs := testFS(t)

	slug, err := fs.SaveNote(Note{
		Title: "Error Correction Breakthrough", Summary: "surface codes beaten",
		URLs: []string{"https://a.example"}, Tags: []string{"hardware"},
		Shared: true, AgentID: "a1",
	})
	if err != nil {
		t.Fatalf("SaveNote failed: %v", err)
	}
	if slug != "error-correction-breakthrough" {
		t.Errorf("unexpected slug: %q", slug)
	}

	if _, err := fs.SaveNote(Note{Title: "Private scratch", Summary: "x", AgentID: "a1"}); err != nil {
		t.Fatalf("SaveNote failed: %v", err)
	}

	shared, err := fs.SharedNotes("", 10)
	if err != nil {
		t.Fatalf("SharedNotes failed: %v", err)
	}
	if len(shared) != 1 || shared[0].Title != "Error Correction Breakthrough" {
		t.Errorf("shared filter wrong: %+v", shared)
	}
	if shared[0].Summary != "surface codes beaten" {
		t.Errorf("summary lost: %+v", shared[0])
	}

	byKeyword, _ := fs.SharedNotes("hardware", 10)
	if len(byKeyword) != 1 {
		t.Errorf("keyword filter wrong: %+v", byKeyword)
	}
	miss, _ := fs.SharedNotes("biology", 10)
	if len(miss) != 0 {
		t.Errorf("keyword filter should exclude: %+v", miss)
	}

	// Slug collisions get a numeric suffix.
	slug2, _ := fs.SaveNote(Note{Title: "Error Correction Breakthrough", Summary: "again", Shared: true})
	if slug2 != "error-correction-breakthrough-2" {
		t.Errorf("expected suffixed slug, got %q", slug2)
	}

	f, _ := fs.ReadAgentFile("a1")
	if len(f.NoteSlugs) != 2 {
		t.Errorf("agent note slugs not recorded: %v", f.NoteSlugs)
	}
}

func TestMainSections(t *testing.T) {
	fs := testFS(t)
	if err := fs.AppendMainSection("Research Plan", "the plan"); err != nil {
		t.Fatalf("AppendMainSection failed: %v", err)
	}
	if err := fs.AppendMainSection("Key Insights", "insight one"); err != nil {
		t.Fatalf("AppendMainSection failed: %v", err)
	}
	content, err := fs.ReadMain()
	if err != nil {
		t.Fatalf("ReadMain failed: %v", err)
	}
	if !strings.Contains(content, "## Research Plan") || !strings.Contains(content, "insight one") {
		t.Errorf("main.md sections missing: %q", content)
	}
}
