package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-lichess-bot/internal/domain"
	"github.com/park285/cheese-lichess-bot/internal/obslog"
	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
	stopGrace            = 500 * time.Millisecond
	quitTimeout          = 2 * time.Second
	defaultSearchWindow  = 10 * time.Second
)

var (
	ErrEngineClosed = errors.New("engine process closed")
	ErrNotPondering = errors.New("engine is not pondering")
	ErrBusy         = errors.New("engine is pondering")
)

// Options are fixed "setoption" pairs applied once after the handshake.
type Options struct {
	Values map[string]string
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
}

type searchState int

const (
	stateIdle searchState = iota
	stateSearching
	statePondering
)

// Session owns one engine process speaking UCI over stdin/stdout.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	exited chan struct{}

	mu     sync.Mutex
	search sync.Mutex
	state  searchState
	// owed counts bestmove lines still expected from searches abandoned on timeout.
	owed   int
	closed bool
}

func NewSession(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}

	// The process must outlive ctx; it is shut down through Quit.
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 64),
		exited: make(chan struct{}),
	}
	go s.pump(stdoutPipe)
	go func() {
		_ = cmd.Wait()
		close(s.exited)
	}()

	if err := s.initialize(ctx, opt); err != nil {
		_ = s.Quit(context.Background())
		return nil, err
	}
	return s, nil
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Clock  domain.Clock
	Limits Limits
	// Window bounds how long the caller waits for bestmove before sending stop.
	Window time.Duration
}

type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
	PonderMove string
}

// Search runs a normal search and waits for its bestmove.
func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	if s.state == statePondering {
		return SearchResponse{}, ErrBusy
	}
	if err := s.start(req, false); err != nil {
		return SearchResponse{}, err
	}
	return s.awaitBestMove(ctx, req.Window)
}

// Ponder starts a speculative "go ponder" search and returns immediately.
func (s *Session) Ponder(ctx context.Context, req SearchRequest) error {
	s.search.Lock()
	defer s.search.Unlock()

	if s.state != stateIdle {
		return ErrBusy
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.start(req, true); err != nil {
		return err
	}
	s.state = statePondering
	return nil
}

// PonderHit converts the running ponder search into a normal one and waits for its result.
func (s *Session) PonderHit(ctx context.Context, window time.Duration) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	if s.state != statePondering {
		return SearchResponse{}, ErrNotPondering
	}
	if err := s.send("ponderhit\n"); err != nil {
		s.state = stateIdle
		return SearchResponse{}, fmt.Errorf("send ponderhit: %w", err)
	}
	s.state = stateSearching
	return s.awaitBestMove(ctx, window)
}

// PonderMiss stops the speculative search and discards its bestmove.
func (s *Session) PonderMiss(ctx context.Context) error {
	s.search.Lock()
	defer s.search.Unlock()

	if s.state != statePondering {
		return nil
	}
	return s.stopLocked(ctx)
}

// Stop halts any running search. The bestmove it produces is discarded.
func (s *Session) Stop(ctx context.Context) error {
	s.search.Lock()
	defer s.search.Unlock()

	if s.state == stateIdle {
		return nil
	}
	return s.stopLocked(ctx)
}

func (s *Session) stopLocked(ctx context.Context) error {
	s.state = stateIdle
	if err := s.send("stop\n"); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}
	graceCtx, cancel := context.WithTimeout(ctx, stopGrace)
	defer cancel()
	if _, err := s.readBestMove(graceCtx); err != nil {
		s.owed++
		if errors.Is(err, ErrEngineClosed) {
			return err
		}
	}
	return nil
}

func (s *Session) start(req SearchRequest, ponder bool) error {
	positionCmd := buildPositionCommand(req.FEN, req.Moves)
	if err := s.send(positionCmd); err != nil {
		return fmt.Errorf("send position: %w", err)
	}
	goTokens, err := buildGoTokens(req.Clock, req.Limits, ponder)
	if err != nil {
		return err
	}
	if err := s.send(strings.Join(goTokens, " ") + "\n"); err != nil {
		return fmt.Errorf("send go: %w", err)
	}
	s.state = stateSearching
	return nil
}

// awaitBestMove waits up to window; on expiry it sends stop and gives the engine a short grace.
func (s *Session) awaitBestMove(ctx context.Context, window time.Duration) (SearchResponse, error) {
	if window <= 0 {
		window = defaultSearchWindow
	}
	searchCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	resp, err := s.readBestMove(searchCtx)
	if err == nil {
		s.state = stateIdle
		return resp, nil
	}
	if errors.Is(err, ErrEngineClosed) {
		s.state = stateIdle
		return SearchResponse{}, err
	}

	obslog.L().Warn("uci_search_window_expired", zap.Duration("window", window), zap.Error(err))
	s.state = stateIdle
	if serr := s.send("stop\n"); serr != nil {
		return SearchResponse{}, fmt.Errorf("send stop: %w", serr)
	}
	graceCtx, graceCancel := context.WithTimeout(context.Background(), stopGrace)
	defer graceCancel()
	resp, gerr := s.readBestMove(graceCtx)
	if gerr != nil {
		s.owed++
		return SearchResponse{}, fmt.Errorf("read bestmove: %w", err)
	}
	return resp, nil
}

func (s *Session) readBestMove(ctx context.Context) (SearchResponse, error) {
	candidates := make(map[int]Candidate)
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return SearchResponse{}, err
		}
		switch {
		case strings.HasPrefix(line, "info "):
			if mv, cand, ok := parseInfo(line); ok {
				candidates[mv] = cand
			}
		case strings.HasPrefix(line, "bestmove"):
			if s.owed > 0 {
				s.owed--
				candidates = make(map[int]Candidate)
				continue
			}
			best, ponder := parseBestMove(line)
			return SearchResponse{Candidates: collapseCandidates(candidates), BestMove: best, PonderMove: ponder}, nil
		}
	}
}

func parseBestMove(line string) (string, string) {
	parts := strings.Fields(line)
	var best, ponder string
	if len(parts) >= 2 {
		best = parts[1]
	}
	if best == "(none)" || best == "0000" {
		best = ""
	}
	if len(parts) >= 4 && parts[2] == "ponder" {
		ponder = parts[3]
	}
	return best, ponder
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func validateOptions(opt Options) error {
	for name := range opt.Values {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("empty engine option name")
		}
	}
	return nil
}

func buildGoTokens(c domain.Clock, l Limits, ponder bool) ([]string, error) {
	args := []string{"go"}
	if ponder {
		args = append(args, "ponder")
	}
	if c.WTime > 0 || c.BTime > 0 {
		args = append(args,
			"wtime", strconv.FormatInt(c.WTime, 10),
			"btime", strconv.FormatInt(c.BTime, 10),
			"winc", strconv.FormatInt(c.WInc, 10),
			"binc", strconv.FormatInt(c.BInc, 10),
		)
	}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 || (ponder && len(args) == 2) {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

func parseInfo(line string) (int, Candidate, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return 0, Candidate{}, false
	}
	var (
		multipv = 1
		evalCP  int
		pvIdx   = -1
	)

	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					multipv = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				switch parts[i+1] {
				case "cp":
					if v, err := strconv.Atoi(parts[i+2]); err == nil {
						evalCP = v
					}
				case "mate":
					if v, err := strconv.Atoi(parts[i+2]); err == nil {
						const mateValue = 30000
						if v >= 0 {
							evalCP = mateValue
						} else {
							evalCP = -mateValue
						}
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}

	if pvIdx == -1 || pvIdx >= len(parts) {
		return 0, Candidate{}, false
	}
	principal := parts[pvIdx:]
	return multipv, Candidate{
		Move:      principal[0],
		EvalCP:    evalCP,
		Principal: append([]string(nil), principal...),
	}, true
}

func collapseCandidates(m map[int]Candidate) []Candidate {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	result := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		result = append(result, m[k])
	}
	return result
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}

	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := s.EnsureReady(ctx)
		if err == nil {
			return nil
		}
		if attempt == newGameRetryAttempts {
			return err
		}
		obslog.L().Warn("uci_ready_retry", zap.Int("attempt", attempt), zap.Int("max", newGameRetryAttempts), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

// Quit asks the engine to exit and waits for it. The process is killed only
// if it ignores quit. Safe to call more than once.
func (s *Session) Quit(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	_, _ = io.WriteString(s.stdin, "quit\n")
	s.closed = true
	_ = s.stdin.Close()
	s.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, quitTimeout)
	defer cancel()
	select {
	case <-s.exited:
		return nil
	case <-waitCtx.Done():
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-s.exited
		return fmt.Errorf("engine ignored quit: %w", waitCtx.Err())
	}
}

func (s *Session) Close() error {
	return s.Quit(context.Background())
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	if err := s.applyOptions(opt); err != nil {
		return err
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) applyOptions(opt Options) error {
	for _, cmd := range optionCommands(opt) {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

func optionCommands(opt Options) []string {
	names := make([]string, 0, len(opt.Values))
	for name := range opt.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	cmds := make([]string, 0, len(names))
	for _, name := range names {
		cmds = append(cmds, fmt.Sprintf("setoption name %s value %s\n", strings.TrimSpace(name), strings.TrimSpace(opt.Values[name])))
	}
	return cmds
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

// pump is the only reader of stdout. Info lines are dropped when nobody is
// reading so a long ponder search never blocks on a full pipe.
func (s *Session) pump(r io.Reader) {
	defer close(s.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "info ") {
			select {
			case s.lines <- line:
			default:
			}
			continue
		}
		s.lines <- line
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", ErrEngineClosed
		}
		return line, nil
	}
}
