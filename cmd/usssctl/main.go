// Command usssctl is the operator CLI: it imports update metadata into a
// store, copies stores between backends, mirrors payload content, and
// manages deployment approvals.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Snshadow/update-server-server-sync/internal/buildinfo"
	"github.com/Snshadow/update-server-server-sync/internal/content"
	"github.com/Snshadow/update-server-server-sync/internal/logging"
	"github.com/Snshadow/update-server-server-sync/internal/metastore"
	"github.com/Snshadow/update-server-server-sync/internal/server/models"
	"github.com/Snshadow/update-server-server-sync/internal/server/repositories/sqldb"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: usssctl <command> [flags]

commands:
  import    ingest metadata XML files into a store
  copy      copy every package between two stores
  fetch     mirror payload files of stored updates
  approve   write a deployment row for a revision`)
	os.Exit(2)
}

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	if len(os.Args) < 2 {
		usage()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(ctx, os.Args[2:])
	case "copy":
		err = runCopy(ctx, os.Args[2:])
	case "fetch":
		err = runFetch(ctx, os.Args[2:])
	case "approve":
		err = runApprove(ctx, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

func openStore(kind, path string) (metastore.Store, error) {
	return metastore.Open(metastore.Kind(kind), path)
}

func runImport(ctx context.Context, args []string) error {
	fs1 := flag.NewFlagSet("import", flag.ExitOnError)
	kind := fs1.String("k", "deltazip", "store kind (deltazip|dir|sqlite)")
	path := fs1.String("s", "metadata-store", "store path")
	if err := fs1.Parse(args); err != nil {
		return err
	}
	if fs1.NArg() == 0 {
		return fmt.Errorf("import: no metadata files given")
	}

	store, err := openStore(*kind, *path)
	if err != nil {
		return err
	}
	defer store.Close()

	imported := 0
	for _, root := range fs1.Args() {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".xml") {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			raw, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			pkg, err := update.ParseMetadata(raw)
			if err != nil {
				log.Printf("skipping %s: %v", p, err)
				return nil
			}
			if err := store.AddPackage(pkg); err != nil {
				return fmt.Errorf("add %s: %w", pkg.ID, err)
			}
			imported++
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := store.Flush(); err != nil {
		return err
	}
	log.Printf("imported %d packages", imported)
	return nil
}

func runCopy(ctx context.Context, args []string) error {
	fs1 := flag.NewFlagSet("copy", flag.ExitOnError)
	fromKind := fs1.String("from-k", "deltazip", "source store kind")
	fromPath := fs1.String("from", "", "source store path")
	toKind := fs1.String("to-k", "sqlite", "destination store kind")
	toPath := fs1.String("to", "", "destination store path")
	if err := fs1.Parse(args); err != nil {
		return err
	}
	if *fromPath == "" || *toPath == "" {
		return fmt.Errorf("copy: -from and -to are required")
	}

	src, err := openStore(*fromKind, *fromPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := openStore(*toKind, *toPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	n, err := metastore.Copy(ctx, src, dst)
	if err != nil {
		return err
	}
	log.Printf("copied %d packages", n)
	return nil
}

func runFetch(ctx context.Context, args []string) error {
	fs1 := flag.NewFlagSet("fetch", flag.ExitOnError)
	kind := fs1.String("k", "deltazip", "store kind")
	path := fs1.String("s", "metadata-store", "store path")
	out := fs1.String("out", "content", "local content directory")
	useS3 := fs1.Bool("s3", false, "mirror into an S3-compatible bucket instead")
	s3User := fs1.String("s3-user", "admin", "S3 root user")
	s3Password := fs1.String("s3-password", "secretpassword", "S3 root password")
	s3Bucket := fs1.String("s3-bucket", "wsus-content", "S3 bucket")
	s3Region := fs1.String("s3-region", "us-east-1", "S3 region")
	s3Endpoint := fs1.String("s3-endpoint", "http://127.0.0.1:9000/", "S3 base endpoint")
	if err := fs1.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*kind, *path)
	if err != nil {
		return err
	}
	defer store.Close()

	var sink content.Sink = content.DirSink{Root: *out}
	if *useS3 {
		sink = content.NewS3Sink(content.S3Config{
			RootUser:     *s3User,
			RootPassword: *s3Password,
			Bucket:       *s3Bucket,
			Region:       *s3Region,
			BaseEndpoint: *s3Endpoint,
		})
	}
	mirror := content.NewMirror(sink, logging.NewJSONLogger(os.Stdout))

	for _, entry := range store.Identities() {
		files, err := store.Files(entry.ID)
		if err != nil {
			return err
		}
		if err := mirror.Fetch(ctx, files); err != nil {
			return err
		}
	}
	return nil
}

func runApprove(ctx context.Context, args []string) error {
	fs1 := flag.NewFlagSet("approve", flag.ExitOnError)
	dbPath := fs1.String("d", "deploySync.db", "deploy sync database file")
	revision := fs1.Int("rev", 0, "revision index to approve")
	action := fs1.String("action", "Install", "deployment action (Install|Bundle|Evaluate|PreDeploymentCheck)")
	deadline := fs1.String("deadline", "", "optional deadline, RFC3339")
	if err := fs1.Parse(args); err != nil {
		return err
	}
	if *revision <= 0 {
		return fmt.Errorf("approve: -rev is required")
	}

	act, err := models.ParseDeploymentAction(*action)
	if err != nil {
		return err
	}

	dep := &models.Deployment{
		RevisionID:     *revision,
		Action:         act,
		LastChangeTime: time.Now(),
	}
	if *deadline != "" {
		t, err := time.Parse(time.RFC3339, *deadline)
		if err != nil {
			return fmt.Errorf("approve: deadline: %w", err)
		}
		dep.Deadline = &t
	}

	db, mgr, err := sqldb.OpenSQLite(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := mgr.Deployments(db).Save(ctx, dep); err != nil {
		return err
	}
	log.Printf("deployment saved: revision %d action %s", *revision, act)
	return nil
}
