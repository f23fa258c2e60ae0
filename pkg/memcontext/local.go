package memcontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"memcontext-be/pkg/llm"
	"memcontext-be/pkg/profile"

	"github.com/google/uuid"
)

const (
	DefaultShortTermCapacity = 7
	DefaultKnowledgeCapacity = 100
	DefaultMidTermCapacity   = 200
	DefaultHeatThreshold     = 5.0

	TimestampLayout = "2006-01-02 15:04:05"

	shortTermFile = "short_term.json"
	knowledgeFile = "knowledge.json"
	profileFile   = "profile.txt"
)

var (
	ErrNothingToAnalyze = errors.New("no conversation turns to analyze yet")
	// ErrClosed is returned by writes that arrive after Teardown.
	ErrClosed = errors.New("memory handle is closed")
)

type Options struct {
	UserID              string
	AssistantID         string
	DataStoragePath     string
	FileStorageBasePath string
	ShortTermCapacity   int
	KnowledgeCapacity   int
	Client              llm.LLMProvider
	Model               string
	Converters          map[string]Converter
}

type knowledgeEntry struct {
	Knowledge string `json:"knowledge"`
	FileID    string `json:"file_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Local is a file-backed Handle: a short-term window of turns, ingested
// knowledge snippets and the profile text live under DataStoragePath.
type Local struct {
	opts         Options
	userDir      string
	assistantDir string

	mu        sync.RWMutex
	turns     []Turn
	knowledge []knowledgeEntry
	profile   string
	closed    bool
}

var _ Handle = (*Local)(nil)

func NewLocal(opts Options) (*Local, error) {
	if strings.TrimSpace(opts.UserID) == "" {
		return nil, errors.New("user id is required")
	}
	if opts.Client == nil {
		return nil, errors.New("llm client is required")
	}
	if opts.ShortTermCapacity <= 0 {
		opts.ShortTermCapacity = DefaultShortTermCapacity
	}
	if opts.KnowledgeCapacity <= 0 {
		opts.KnowledgeCapacity = DefaultKnowledgeCapacity
	}
	if opts.AssistantID == "" {
		opts.AssistantID = "assistant_" + opts.UserID
	}
	if opts.Converters == nil {
		opts.Converters = map[string]Converter{"text": TextConverter{}}
	}

	l := &Local{
		opts:         opts,
		userDir:      filepath.Join(opts.DataStoragePath, "users", safeSegment(opts.UserID)),
		assistantDir: filepath.Join(opts.DataStoragePath, "assistants", safeSegment(opts.AssistantID)),
	}

	for _, dir := range []string{l.userDir, l.assistantDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create memory dir: %w", err)
		}
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func safeSegment(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

func (l *Local) load() error {
	if err := readJSON(filepath.Join(l.userDir, shortTermFile), &l.turns); err != nil {
		return fmt.Errorf("load short-term memory: %w", err)
	}
	if err := readJSON(filepath.Join(l.userDir, knowledgeFile), &l.knowledge); err != nil {
		return fmt.Errorf("load knowledge: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(l.userDir, profileFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load profile: %w", err)
	}
	l.profile = string(data)
	return nil
}

func readJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// writeJSON replaces path atomically.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (l *Local) UserID() string          { return l.opts.UserID }
func (l *Local) AssistantID() string     { return l.opts.AssistantID }
func (l *Local) Model() string           { return l.opts.Model }
func (l *Local) Client() llm.LLMProvider { return l.opts.Client }

func (l *Local) UserProfile() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.profile
}

func (l *Local) RecentTurns(n int) []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.turns) {
		n = len(l.turns)
	}
	out := make([]Turn, n)
	copy(out, l.turns[len(l.turns)-n:])
	return out
}

func (l *Local) AddMemory(_ context.Context, turn Turn) error {
	if turn.Timestamp == "" {
		turn.Timestamp = time.Now().Format(TimestampLayout)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.appendTurnLocked(turn)
	return writeJSON(filepath.Join(l.userDir, shortTermFile), l.turns)
}

func (l *Local) appendTurnLocked(turn Turn) {
	l.turns = append(l.turns, turn)
	if over := len(l.turns) - l.opts.ShortTermCapacity; over > 0 {
		l.turns = append([]Turn(nil), l.turns[over:]...)
	}
}

func (l *Local) systemPrompt() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var b strings.Builder
	b.WriteString("You are a helpful assistant with long-term memory of this user. ")
	b.WriteString("Answer in the user's language and use what you remember when it is relevant.\n")
	if !profile.Empty(l.profile) {
		b.WriteString("\nUser profile:\n")
		b.WriteString(l.profile)
		b.WriteString("\n")
	}
	if len(l.knowledge) > 0 {
		b.WriteString("\nKnown context:\n")
		start := len(l.knowledge) - 5
		if start < 0 {
			start = 0
		}
		for _, k := range l.knowledge[start:] {
			b.WriteString("- ")
			b.WriteString(k.Knowledge)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (l *Local) ResponseStream(ctx context.Context, input string) (<-chan string, <-chan error) {
	history := []llm.Message{{Role: llm.RoleSystem, Content: l.systemPrompt()}}
	for _, t := range l.RecentTurns(l.opts.ShortTermCapacity) {
		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: t.UserInput},
			llm.Message{Role: llm.RoleAssistant, Content: t.AgentResponse},
		)
	}
	history = append(history, llm.Message{Role: llm.RoleUser, Content: input})

	var opts []llm.Option
	if l.opts.Model != "" {
		opts = append(opts, llm.WithModel(l.opts.Model))
	}
	upstream, upstreamErr := l.opts.Client.ChatStream(ctx, history, opts...)

	out := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(out)

		var full strings.Builder
		for chunk := range upstream {
			full.WriteString(chunk)
			select {
			case out <- chunk:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := <-upstreamErr; err != nil {
			errc <- err
			return
		}

		err := l.AddMemory(ctx, Turn{UserInput: input, AgentResponse: full.String()})
		if err != nil && !errors.Is(err, ErrClosed) {
			errc <- fmt.Errorf("record turn: %w", err)
		}
	}()

	return out, errc
}

func clamp01(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(1, p))
}

func (l *Local) AddMultimodal(ctx context.Context, req IngestRequest, progress ProgressFunc) (*IngestResult, error) {
	report := func(p float64, msg string) {
		if progress != nil {
			progress(clamp01(p), msg)
		}
	}

	if l.isClosed() {
		return nil, ErrClosed
	}

	convType := strings.ToLower(strings.TrimSpace(req.ConverterType))
	conv, ok := l.opts.Converters[convType]
	if !ok {
		return nil, &ErrUnsupportedConverter{Type: convType}
	}
	if _, err := os.Stat(req.Source); err != nil {
		return nil, fmt.Errorf("source file: %w", err)
	}

	chunks, err := conv.Convert(ctx, req.Source, req.ConverterKwargs, func(p float64, msg string) {
		report(p*0.6, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", filepath.Base(req.Source), err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("convert %s: no content extracted", filepath.Base(req.Source))
	}

	fileID := uuid.NewString()
	result := &IngestResult{Status: "success", FileID: fileID}

	if l.opts.FileStorageBasePath != "" {
		stored, err := copyInto(req.Source, filepath.Join(l.opts.FileStorageBasePath, "files", fileID))
		if err != nil {
			return nil, fmt.Errorf("store source: %w", err)
		}
		result.StoragePath = stored
		result.StorageBasePath = l.opts.FileStorageBasePath
	}

	name := filepath.Base(req.Source)
	agentResponse := req.AgentResponse
	if agentResponse == "" {
		agentResponse = fmt.Sprintf("Stored content from %s.", name)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		if result.StoragePath != "" {
			_ = os.RemoveAll(filepath.Dir(result.StoragePath))
		}
		return nil, ErrClosed
	}
	for i, c := range chunks {
		ts := time.Now().Format(TimestampLayout)
		l.knowledge = append(l.knowledge, knowledgeEntry{Knowledge: c.Text, FileID: fileID, Timestamp: ts})
		result.Timestamps = append(result.Timestamps, ts)
		report(0.6+0.35*float64(i+1)/float64(len(chunks)), fmt.Sprintf("Stored chunk %d/%d", i+1, len(chunks)))
	}
	if over := len(l.knowledge) - l.opts.KnowledgeCapacity; over > 0 {
		l.knowledge = append([]knowledgeEntry(nil), l.knowledge[over:]...)
	}
	l.appendTurnLocked(Turn{
		UserInput:     fmt.Sprintf("[%s] %s", convType, name),
		AgentResponse: agentResponse,
		Timestamp:     time.Now().Format(TimestampLayout),
		MetaData:      map[string]interface{}{"file_id": fileID, "chunks": len(chunks)},
	})
	err = writeJSON(filepath.Join(l.userDir, knowledgeFile), l.knowledge)
	if err == nil {
		err = writeJSON(filepath.Join(l.userDir, shortTermFile), l.turns)
	}
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("persist ingested memory: %w", err)
	}

	result.ChunksWritten = len(chunks)
	report(1, "Ingestion complete")
	return result, nil
}

func copyInto(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := filepath.Join(dir, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}

func (l *Local) Analyze(ctx context.Context) error {
	if l.isClosed() {
		return ErrClosed
	}
	turns := l.RecentTurns(0)
	if len(turns) == 0 {
		return ErrNothingToAnalyze
	}

	var b strings.Builder
	b.WriteString("Analyze the conversation below and grade the user on the dimensions listed.\n")
	b.WriteString("Only grade dimensions the conversation gives evidence for. ")
	b.WriteString("Write one line per dimension in the form `Dimension (High|Medium|Low)` and nothing else.\n\n")
	for _, cat := range profile.Categories {
		fmt.Fprintf(&b, "%s: %s\n", cat.Name, strings.Join(cat.Dimensions, ", "))
	}
	b.WriteString("\nConversation:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\nAI: %s\n", t.UserInput, t.AgentResponse)
	}

	var opts []llm.Option
	if l.opts.Model != "" {
		opts = append(opts, llm.WithModel(l.opts.Model))
	}
	out, err := l.opts.Client.Generate(ctx, b.String(), append(opts, llm.WithTemperature(0.2))...)
	if err != nil {
		return fmt.Errorf("profile analysis: %w", err)
	}

	out = strings.TrimSpace(out)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if err := os.WriteFile(filepath.Join(l.userDir, profileFile), []byte(out), 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	l.profile = out
	return nil
}

func (l *Local) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	memories := append([]Turn{}, l.turns...)
	knowledge := make([]string, 0, len(l.knowledge))
	for _, k := range l.knowledge {
		knowledge = append(knowledge, k.Knowledge)
	}

	return State{
		ShortTerm: ShortTermState{
			Capacity:     l.opts.ShortTermCapacity,
			CurrentCount: len(memories),
			Memories:     memories,
		},
		MidTerm: MidTermState{
			Capacity:      DefaultMidTermCapacity,
			Sessions:      []MidTermSession{},
			HeatThreshold: DefaultHeatThreshold,
		},
		LongTerm: LongTermState{
			UserProfile:        l.profile,
			UserKnowledge:      knowledge,
			AssistantKnowledge: []string{},
		},
	}
}

func (l *Local) isClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

// Teardown wipes the user's memory from disk. The handle rejects writes
// afterwards so an in-flight chat or ingestion cannot recreate the files.
func (l *Local) Teardown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.turns = nil
	l.knowledge = nil
	l.profile = ""
	return errors.Join(os.RemoveAll(l.userDir), os.RemoveAll(l.assistantDir))
}
