package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dunamismax/eventdesk/internal/bootstrap"
	"github.com/dunamismax/eventdesk/internal/cmsapi"
	"github.com/dunamismax/eventdesk/internal/config"
	"github.com/dunamismax/eventdesk/internal/domain"
	"github.com/dunamismax/eventdesk/internal/importer"
	"github.com/dunamismax/eventdesk/internal/pipeline"
	"github.com/dunamismax/eventdesk/internal/storage"
	"github.com/dunamismax/eventdesk/internal/uploader"
)

const usage = `usage:
  eventctl upload -folder photos|videos|posters [-emitter cms|storage] [-out DIR] FILE...
  eventctl import FILE.csv|FILE.xlsx`

func main() {
	logger := bootstrap.NewLogger("eventctl")
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	switch os.Args[1] {
	case "upload":
		err = runUpload(ctx, cfg, logger, os.Args[2:], os.Stdout)
	case "import":
		err = runImport(ctx, cfg, logger, os.Args[2:], os.Stdout)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatalf("%s: %v", os.Args[1], err)
	}
}

func runUpload(ctx context.Context, cfg config.Config, logger *log.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	folder := fs.String("folder", domain.FolderPhotos, "target folder")
	emitterKind := fs.String("emitter", cfg.Worker.Emitter, "cms or storage")
	outDir := fs.String("out", "", "write results under this directory instead of uploading")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one file is required")
	}

	files, err := readLocalFiles(fs.Args())
	if err != nil {
		return err
	}

	if err := pipeline.Startup(0); err != nil {
		return err
	}
	defer pipeline.Shutdown()

	cms, err := bootstrap.NewCMSClient(cfg.CMS)
	if err != nil {
		return err
	}
	var emitter pipeline.Emitter = pipeline.LocalFileEmitter{OutputDir: *outDir}
	if *outDir == "" {
		if emitter, err = uploadEmitter(ctx, cfg, *emitterKind, cms); err != nil {
			return err
		}
	}
	processor, err := pipeline.NewProcessor(nil, nil, emitter, pipeline.FallbackOriginal)
	if err != nil {
		return err
	}
	up, err := uploader.New(processor, cfg.Upload.Concurrency, logger)
	if err != nil {
		return err
	}

	summary, err := up.Bulk(ctx, *folder, files, func(p uploader.Progress) {
		fmt.Fprintf(out, "[%d/%d] %s\n", p.Current, p.Total, p.Name)
	})
	printSummary(out, summary)
	if err != nil {
		return err
	}
	if !summary.Complete() {
		return fmt.Errorf("%d of %d uploads failed", len(summary.Failed), summary.Total)
	}
	return nil
}

func uploadEmitter(ctx context.Context, cfg config.Config, kind string, cms *cmsapi.Client) (pipeline.Emitter, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	var objects *storage.Client
	if kind == "storage" {
		var err error
		if objects, err = bootstrap.OpenStorage(ctx, cfg.Storage); err != nil {
			return nil, err
		}
	}
	return bootstrap.Emitter(kind, cms, objects)
}

func runImport(ctx context.Context, cfg config.Config, logger *log.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one spreadsheet is required")
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cms, err := bootstrap.NewCMSClient(cfg.CMS)
	if err != nil {
		return err
	}
	report := importer.New(cms, logger).Run(ctx, filepath.Base(path), f, func(p importer.Progress) {
		fmt.Fprintf(out, "\rimporting %d/%d (%d%%)", p.Processed, p.Total, p.Percent)
	})
	fmt.Fprintln(out)
	printReport(out, report)
	if report.Failed > 0 {
		return fmt.Errorf("%d rows failed", report.Failed)
	}
	return nil
}

func readLocalFiles(paths []string) ([]domain.File, error) {
	files := make([]domain.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, domain.File{
			Name:        filepath.Base(p),
			ContentType: detectContentType(p, data),
			Data:        data,
		})
	}
	return files, nil
}

// detectContentType prefers the extension and falls back to sniffing.
func detectContentType(path string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	mediaType, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}

func printSummary(out io.Writer, s uploader.Summary) {
	fmt.Fprintf(out, "uploaded %d/%d\n", s.Succeeded, s.Total)
	for _, u := range s.Uploaded {
		note := ""
		if u.Fallback {
			note = " (original kept: " + u.Warning + ")"
		}
		fmt.Fprintf(out, "  ok     %s -> %s%s\n", u.Name, u.Key, note)
	}
	for _, name := range s.Rejected {
		fmt.Fprintf(out, "  skip   %s (wrong type for folder)\n", name)
	}
	for _, f := range s.Failed {
		fmt.Fprintf(out, "  failed %s: %s\n", f.Name, f.Error)
	}
}

func printReport(out io.Writer, r importer.Report) {
	fmt.Fprintf(out, "rows=%d created=%d failed=%d skipped=%d\n", r.Total, r.Created, r.Failed, r.Skipped)
	for _, l := range r.Logs {
		fmt.Fprintf(out, "  row %d %-7s %s: %s\n", l.Row, l.Status, l.Name, l.Message)
	}
}
