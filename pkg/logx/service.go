package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Chat    ChatConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ChatConfig mirrors warnings and errors into the operator chat.
type ChatConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// Sink delivers one formatted log message to a chat. The Telegram adapter satisfies it.
type Sink interface {
	SendLog(ctx context.Context, text string) error
}

const defaultLogPath = "./adhanbot.log"

// Service owns the log outputs. Apply rebuilds them; every Logger obtained
// from the Service picks the new outputs up on its next call.
type Service struct {
	root atomic.Pointer[zerolog.Logger]

	mu    sync.Mutex
	file  *os.File
	chat  *chatSink
	level zerolog.Level
}

// New builds the service from cfg and returns it with its root Logger.
// sink may be nil and set later with SetSink.
func New(cfg Config, sink Sink) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat

	s := &Service{chat: newChatSink(sink)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetSink swaps the chat destination; nil pauses mirroring.
func (s *Service) SetSink(sink Sink) { s.chat.setSink(sink) }

// Apply swaps outputs and levels. Safe for concurrent use with logging.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outs []io.Writer
	if cfg.Console {
		outs = append(outs, consoleWriter(os.Stdout))
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogPath
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			s.file = f
			outs = append(outs, zerolog.SyncWriter(f))
		}
	}

	s.chat.configure(cfg.Chat)
	if cfg.Chat.Enabled {
		outs = append(outs, s.chat)
	}
	if len(outs) == 0 {
		outs = append(outs, consoleWriter(os.Stdout))
	}

	s.level = parseLevel(cfg.Level, zerolog.InfoLevel)
	zl := zerolog.New(zerolog.MultiLevelWriter(outs...)).Level(s.level).With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close stops chat delivery and closes the log file.
func (s *Service) Close() error {
	s.chat.stop()

	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}

// chatSink is a zerolog LevelWriter that hands lines at or above the minimum
// level to a single delivery goroutine. Writes never block; excess is dropped.
type chatSink struct {
	mu      sync.Mutex
	sink    Sink
	limiter *rate.Limiter
	min     zerolog.Level

	queue chan string
	start sync.Once
	done  chan struct{}
	wg    sync.WaitGroup
}

func newChatSink(sink Sink) *chatSink {
	return &chatSink{sink: sink, queue: make(chan string, 128), done: make(chan struct{}), min: zerolog.WarnLevel}
}

func (c *chatSink) setSink(sink Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *chatSink) configure(cfg ChatConfig) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	c.mu.Lock()
	c.min = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	c.mu.Unlock()

	if cfg.Enabled {
		c.start.Do(func() {
			c.wg.Add(1)
			go c.deliver()
		})
	}
}

func (c *chatSink) stop() {
	c.mu.Lock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *chatSink) deliver() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case text := <-c.queue:
			c.mu.Lock()
			sink := c.sink
			c.mu.Unlock()
			if sink == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), chatSendTimeout)
			_ = sink.SendLog(ctx, text)
			cancel()
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) { return c.WriteLevel(zerolog.InfoLevel, p) }

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	ok := c.sink != nil && level >= c.min && c.limiter != nil && c.limiter.Allow()
	c.mu.Unlock()
	if !ok {
		return len(p), nil
	}
	if text := formatChatLine(p); text != "" {
		select {
		case c.queue <- text:
		default:
		}
	}
	return len(p), nil
}
