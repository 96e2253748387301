package ops

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hpungsan/lpkunpack/internal/archive"
	"github.com/hpungsan/lpkunpack/internal/config"
	"github.com/hpungsan/lpkunpack/internal/db"
	"github.com/hpungsan/lpkunpack/internal/errors"
	"github.com/hpungsan/lpkunpack/internal/lpk"
	"github.com/hpungsan/lpkunpack/internal/report"
)

// ExtractInput contains parameters for the Extract operation. Zero
// values fall back to the configuration.
type ExtractInput struct {
	Target         string // a .lpk file or a directory searched recursively
	OutputDir      string
	SecretsFile    string
	Jobs           int
	StrictVariants bool
	ReportFormat   string

	// Prompter answers file id questions. Only used with a single worker.
	Prompter lpk.Prompter
	Logger   *slog.Logger
}

// ArchiveOutcome is the result of one archive in a batch.
type ArchiveOutcome struct {
	RunID     string      `json:"run_id"`
	Archive   string      `json:"archive"`
	Digest    string      `json:"digest,omitempty"`
	OutputDir string      `json:"output_dir"`
	Status    string      `json:"status"`
	Code      string      `json:"code,omitempty"`
	Stage     string      `json:"stage,omitempty"`
	Error     string      `json:"error,omitempty"`
	Report    string      `json:"report,omitempty"`
	Result    *lpk.Result `json:"result,omitempty"`
}

// ExtractOutput contains the result of the Extract operation.
type ExtractOutput struct {
	Archives  []ArchiveOutcome `json:"archives"`
	Succeeded int              `json:"succeeded"`
	Partial   int              `json:"partial"`
	Failed    int              `json:"failed"`
}

// extractSettings is the resolved, read-only view shared by workers.
type extractSettings struct {
	secretsFile  string
	strict       bool
	reportFormat string
	extraExts    []string
	prompter     lpk.Prompter
	logger       *slog.Logger
}

// Extract unpacks every archive named by the target. A failing archive
// is reported with its stage and the batch continues. database may be
// nil, in which case no ledger rows are written.
func Extract(ctx context.Context, database *sql.DB, cfg *config.Config, input ExtractInput) (*ExtractOutput, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if input.Target == "" {
		return nil, errors.NewInvalidRequest("target is required")
	}

	archives, err := archive.Discover(input.Target)
	if err != nil {
		return nil, err
	}
	if len(archives) == 0 {
		return nil, errors.NewNotFound(fmt.Sprintf("no %s archives under %s", archive.Ext, input.Target))
	}

	outRoot := firstNonEmpty(input.OutputDir, cfg.OutputDir, ".")
	if err := ValidatePath(outRoot, PathCheckOutput); err != nil {
		return nil, err
	}

	s := &extractSettings{
		secretsFile:  firstNonEmpty(input.SecretsFile, cfg.SecretsFile),
		strict:       input.StrictVariants || cfg.StrictVariants,
		reportFormat: firstNonEmpty(input.ReportFormat, cfg.ReportFormat, report.FormatMarkdown),
		extraExts:    cfg.ExtraVerbatimExts,
		prompter:     input.Prompter,
		logger:       input.Logger,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if report.FileName(s.reportFormat) == "" && s.reportFormat != report.FormatNone {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown report format %q", s.reportFormat))
	}

	jobs := input.Jobs
	if jobs <= 0 {
		jobs = cfg.Jobs
	}
	jobs = max(1, min(jobs, len(archives)))
	if jobs > 1 && s.prompter != nil {
		// Concurrent workers cannot share one operator.
		s.logger.Debug("operator prompts disabled with parallel jobs", "jobs", jobs)
		s.prompter = lpk.NoPrompter{}
	}

	dirs := uniqueOutputDirs(outRoot, archives)
	outcomes := make([]ArchiveOutcome, len(archives))

	tasks := make(chan int, len(archives))
	var wg sync.WaitGroup
	for w := 0; w < jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				outcomes[i] = runArchive(ctx, database, s, archives[i], dirs[i])
			}
		}()
	}
	for i := range archives {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	out := &ExtractOutput{Archives: outcomes}
	for _, oc := range outcomes {
		switch oc.Status {
		case db.StatusOK:
			out.Succeeded++
		case db.StatusPartial:
			out.Partial++
		default:
			out.Failed++
		}
	}
	return out, nil
}

// runArchive extracts one archive, records it in the ledger and writes
// its report. It never returns an error: failures become the outcome.
func runArchive(ctx context.Context, database *sql.DB, s *extractSettings, path, outDir string) ArchiveOutcome {
	started := time.Now()
	oc := ArchiveOutcome{Archive: path, OutputDir: outDir}

	runID, err := generateULID()
	if err != nil {
		return failOutcome(oc, errors.NewInternal(err))
	}
	oc.RunID = runID
	logger := s.logger.With("archive", filepath.Base(path), "run_id", runID)

	if ctx.Err() != nil {
		oc = failOutcome(oc, errors.NewCancelled("extract"))
		record(database, oc, started, logger)
		return oc
	}

	if digest, err := archive.Fingerprint(path); err != nil {
		logger.Warn("fingerprint failed", "error", err)
	} else {
		oc.Digest = digest
	}

	logger.Info("extracting archive", "output", outDir)
	res, err := extractArchive(ctx, s, path, outDir, logger)
	oc.Result = res
	switch {
	case err != nil:
		oc = failOutcome(oc, err)
		logger.Error("archive failed", "stage", oc.Stage, "error", oc.Error)
	case len(res.Failures) > 0:
		oc.Status = db.StatusPartial
		logger.Warn("archive extracted with failures", "failures", len(res.Failures))
	default:
		oc.Status = db.StatusOK
		logger.Info("archive extracted", "documents", res.Documents, "assets", res.Assets, "verbatim", res.Verbatim)
	}

	finished := record(database, oc, started, logger)
	oc.Report = writeReport(s.reportFormat, oc, started, finished, logger)
	return oc
}

func extractArchive(ctx context.Context, s *extractSettings, path, outDir string, logger *slog.Logger) (*lpk.Result, error) {
	a, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	secrets, err := loadArchiveSecrets(s.secretsFile, path, logger)
	if err != nil {
		return nil, err
	}

	ex, err := lpk.NewExtractor(a, lpk.Options{
		Secrets:           secrets,
		Prompter:          s.prompter,
		Logger:            logger,
		StrictVariants:    s.strict,
		ExtraVerbatimExts: s.extraExts,
	})
	if err != nil {
		return nil, err
	}
	if err := ValidatePath(outDir, PathCheckOutput); err != nil {
		return nil, errors.WithStage(err, errors.StageOpen)
	}
	return ex.Extract(ctx, outDir)
}

// loadArchiveSecrets reads the secret document for an archive. An
// explicit document must parse; a discovered one that does not is
// ignored with a warning.
func loadArchiveSecrets(explicit, archivePath string, logger *slog.Logger) (*lpk.Secrets, error) {
	path, err := findSecrets(explicit, archivePath)
	if err != nil {
		return nil, errors.WithStage(err, errors.StageSecrets)
	}
	if path == "" {
		return nil, nil
	}

	secrets, err := readSecrets(path)
	if err != nil {
		if explicit != "" {
			return nil, err
		}
		logger.Warn("ignoring unreadable secret document", "path", path, "error", err)
		return nil, nil
	}
	logger.Debug("using secret document", "path", path)
	return secrets, nil
}

func readSecrets(path string) (*lpk.Secrets, error) {
	f, err := openFileNoFollowRead(path)
	if err != nil {
		return nil, errors.WithStage(err, errors.StageSecrets)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.NewFatalConfig(errors.StageSecrets, fmt.Sprintf("cannot read %s", path), err)
	}
	return lpk.ParseSecrets(data)
}

// record writes the outcome to the ledger and returns the finish time.
// Ledger errors are logged, never fatal.
func record(database *sql.DB, oc ArchiveOutcome, started time.Time, logger *slog.Logger) time.Time {
	finished := time.Now()
	if database == nil {
		return finished
	}

	run := &db.Run{
		ID:            oc.RunID,
		ArchivePath:   oc.Archive,
		ArchiveDigest: oc.Digest,
		Status:        oc.Status,
		FailedStage:   oc.Stage,
		Error:         oc.Error,
		OutputDir:     oc.OutputDir,
		StartedAt:     started.Unix(),
		FinishedAt:    finished.Unix(),
	}
	var translations []db.Translation
	if r := oc.Result; r != nil {
		run.Variant = r.Variant
		run.PackageID = r.PackageID
		run.Mode = r.Mode
		run.Documents = r.Documents
		run.Assets = r.Assets
		run.Verbatim = r.Verbatim
		run.EntryFailures = len(r.Failures)
		for _, tr := range r.Translations {
			translations = append(translations, db.Translation{Entry: tr.Entry, Output: tr.Output, Kind: string(tr.Kind)})
		}
	}

	if err := db.InsertRun(database, run, translations); err != nil {
		logger.Warn("ledger write failed", "error", err)
	}
	return finished
}

// writeReport renders the outcome into the archive's output directory
// and returns the report path, or "" when no report was written.
func writeReport(format string, oc ArchiveOutcome, started, finished time.Time, logger *slog.Logger) string {
	name := report.FileName(format)
	if name == "" {
		return ""
	}

	body, err := report.Render(format, report.Data{
		RunID:      oc.RunID,
		Archive:    oc.Archive,
		Digest:     oc.Digest,
		Status:     oc.Status,
		Stage:      oc.Stage,
		Error:      oc.Error,
		StartedAt:  started,
		FinishedAt: finished,
		Result:     oc.Result,
	})
	if err != nil {
		logger.Warn("report rendering failed", "error", err)
		return ""
	}

	if err := os.MkdirAll(oc.OutputDir, 0o755); err != nil {
		logger.Warn("report directory failed", "error", err)
		return ""
	}
	path := filepath.Join(oc.OutputDir, name)
	f, err := openFileNoFollow(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		logger.Warn("report write failed", "error", err)
		return ""
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		logger.Warn("report write failed", "error", err)
		return ""
	}
	if err := f.Close(); err != nil {
		logger.Warn("report write failed", "error", err)
		return ""
	}
	return path
}

// failOutcome marks oc failed with err's code, stage and message.
func failOutcome(oc ArchiveOutcome, err error) ArchiveOutcome {
	oc.Status = db.StatusFailed
	var uErr *errors.UnpackError
	if stderrors.As(err, &uErr) {
		oc.Code = string(uErr.Code)
		oc.Stage = string(uErr.Stage)
		oc.Error = uErr.Message
		return oc
	}
	oc.Code = string(errors.ErrInternal)
	oc.Error = err.Error()
	return oc
}

func archiveDirName(path string) string {
	return lpk.SanitizeDirName(archive.BaseName(path))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
