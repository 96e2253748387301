package lpk

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/hpungsan/lpkunpack/internal/errors"
)

// maxPromptAttempts bounds how many operator answers one recovery asks for.
const maxPromptAttempts = 3

// ErrNoAnswer is returned by a Prompter that has nothing (more) to offer.
var ErrNoAnswer = stderrors.New("no operator answer available")

// Prompter obtains a corrected workshop file id from an operator.
type Prompter interface {
	PromptFileID(ctx context.Context, archive string) (string, error)
}

// NoPrompter never answers. Used for headless runs.
type NoPrompter struct{}

// PromptFileID implements Prompter.
func (NoPrompter) PromptFileID(context.Context, string) (string, error) {
	return "", ErrNoAnswer
}

// StaticPrompter replays pre-scripted answers in order.
type StaticPrompter struct {
	Answers []string
	next    int
}

// PromptFileID implements Prompter.
func (p *StaticPrompter) PromptFileID(context.Context, string) (string, error) {
	if p.next >= len(p.Answers) {
		return "", ErrNoAnswer
	}
	answer := p.Answers[p.next]
	p.next++
	return answer, nil
}

// TerminalPrompter asks on Out and reads one line per answer from In.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// PromptFileID implements Prompter.
func (p *TerminalPrompter) PromptFileID(ctx context.Context, archive string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}

	fmt.Fprintf(p.Out, "steam workshop fileid is usually a folder under PATH_TO_YOUR_STEAM/steamapps/workshop/content/616720/([0-9]+)\n")
	fmt.Fprintf(p.Out, "auto fix failed for %s, please input fileid manually: ", filepath.Base(archive))

	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return "", ErrNoAnswer
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// NewStdinPrompter returns a TerminalPrompter on stdin when stdin is an
// interactive terminal, and NoPrompter otherwise.
func NewStdinPrompter() Prompter {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return NoPrompter{}
	}
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// fileIDCandidates lists deterministic file id guesses: the secret
// document's lpkFile and the archive's own name, .lpk suffix removed.
func fileIDCandidates(sc *SchemaContext, archivePath string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(name string) {
		name = strings.TrimSpace(name)
		if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".lpk") {
			name = name[:len(name)-4]
		}
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	add(sc.LpkFile)
	if archivePath != "" {
		add(filepath.Base(archivePath))
	}
	return out
}

// Recover decrypts a logical entry into valid UTF-8. When the current
// key fails on a workshop archive it tries the file id candidates, then
// asks p. A successful candidate stays in sc. Other variants fail with
// a decode error right away.
func Recover(ctx context.Context, c Container, sc *SchemaContext, entry string, p Prompter, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	raw, err := readLogical(c, entry)
	if err != nil {
		return nil, err
	}

	attempt := func() ([]byte, bool, error) {
		plain, err := sc.DecryptEntry(entry, raw)
		if err != nil {
			return nil, false, err
		}
		return plain, utf8.Valid(plain), nil
	}

	plain, ok, err := attempt()
	if err != nil || ok {
		return plain, err
	}
	if sc.Variant != VariantWorkshop {
		return nil, errors.NewDecodeFailure(entry)
	}

	original := sc.FileID
	logger.Info("trying to auto fix fileId", "entry", entry)
	for _, candidate := range fileIDCandidates(sc, c.Path()) {
		if candidate == original {
			continue
		}
		sc.SetFileID(candidate)
		if plain, ok, err = attempt(); err != nil {
			return nil, err
		} else if ok {
			logger.Info("fileId recovered", "file_id", candidate)
			return plain, nil
		}
	}

	if p == nil {
		p = NoPrompter{}
	}
	for i := 0; i < maxPromptAttempts; i++ {
		answer, perr := p.PromptFileID(ctx, c.Path())
		if perr != nil {
			if !stderrors.Is(perr, ErrNoAnswer) {
				sc.SetFileID(original)
				return nil, errors.NewFatalConfig(errors.StageRecovery, "reading operator file id", perr)
			}
			break
		}
		if answer == "" {
			continue
		}
		sc.SetFileID(answer)
		if plain, ok, err = attempt(); err != nil {
			return nil, err
		} else if ok {
			logger.Info("fileId accepted from operator", "file_id", answer)
			return plain, nil
		}
		logger.Warn("operator fileId did not decrypt", "file_id", answer)
	}

	sc.SetFileID(original)
	return nil, errors.NewFatalConfig(errors.StageRecovery,
		fmt.Sprintf("decrypt failed for %s after all file id candidates", entry), errors.NewDecodeFailure(entry))
}
