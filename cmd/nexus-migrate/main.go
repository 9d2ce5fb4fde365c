package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	dataDir    = flag.String("data-dir", "./nexus-controller-data", "nexus-controller raft data directory")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to back up the combined database before migration (default: <data-dir>/nexus.db.backup)")
)

// nexus-migrate splits a pre-split-store nexus-controller data directory
// (a single "nexus.db" holding both the raft log and the stable/conf
// key-value bucket) into the two separate raft-boltdb files pkg/ha.Elector
// expects today: raft-log.db and raft-stable.db.
func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("nexus-controller raft store migration tool - combined db -> split log/stable stores")
	log.Println("====================================================================================")

	oldPath := filepath.Join(*dataDir, "nexus.db")
	if _, err := os.Stat(oldPath); os.IsNotExist(err) {
		log.Printf("No combined database found at %s - nothing to migrate", oldPath)
		return
	}

	log.Printf("Database: %s", oldPath)
	log.Printf("Dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = oldPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(oldPath, backupFile); err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Println("Backup created successfully")
	}

	oldDB, err := bolt.Open(oldPath, 0o600, nil)
	if err != nil {
		log.Fatalf("Failed to open combined database: %v", err)
	}
	defer oldDB.Close()

	if err := splitStore(oldDB, *dataDir, *dryRun); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the migration.")
		return
	}

	log.Println("\nMigration completed successfully.")
	log.Printf("The combined database has been preserved at %s for rollback.\n", oldPath)
	log.Println("Once raft-log.db/raft-stable.db are confirmed healthy, it can be deleted.")
}

// logsBucket/confBucket match raft-boltdb's own bucket names, so the
// records copy over verbatim with no re-encoding.
var logsBucket = []byte("logs")
var confBucket = []byte("conf")

func splitStore(oldDB *bolt.DB, dataDir string, dryRun bool) error {
	var logCount, confCount int

	err := oldDB.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(logsBucket); b != nil {
			_ = b.ForEach(func(k, v []byte) error { logCount++; return nil })
		}
		if b := tx.Bucket(confBucket); b != nil {
			_ = b.ForEach(func(k, v []byte) error { confCount++; return nil })
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("Found %d log entries and %d conf entries to migrate", logCount, confCount)
	if dryRun {
		log.Println("\n[DRY RUN] Would perform the following operations:")
		log.Printf("1. Create %s with a %q bucket holding %d entries\n", filepath.Join(dataDir, "raft-log.db"), "logs", logCount)
		log.Printf("2. Create %s with a %q bucket holding %d entries\n", filepath.Join(dataDir, "raft-stable.db"), "conf", confCount)
		return nil
	}

	if err := copyBucket(oldDB, filepath.Join(dataDir, "raft-log.db"), logsBucket); err != nil {
		return fmt.Errorf("split logs bucket: %w", err)
	}
	if err := copyBucket(oldDB, filepath.Join(dataDir, "raft-stable.db"), confBucket); err != nil {
		return fmt.Errorf("split conf bucket: %w", err)
	}
	return nil
}

func copyBucket(oldDB *bolt.DB, destPath string, bucket []byte) error {
	destDB, err := bolt.Open(destPath, 0o600, nil)
	if err != nil {
		return fmt.Errorf("open %s: %w", destPath, err)
	}
	defer destDB.Close()

	return oldDB.View(func(srcTx *bolt.Tx) error {
		src := srcTx.Bucket(bucket)
		if src == nil {
			return nil
		}
		return destDB.Update(func(destTx *bolt.Tx) error {
			dest, err := destTx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return err
			}
			return src.ForEach(func(k, v []byte) error {
				return dest.Put(k, v)
			})
		})
	})
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0o600)
}
