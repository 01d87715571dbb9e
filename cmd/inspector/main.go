// Command inspector is a terminal viewer over a running storage engine's
// buffer pool, lock table, and write-ahead log, in the style of a debug TUI
// reader: point a bubbletea program at a data directory and let an
// operator page through what is in memory and on disk.
//
// With -demo, it also launches a background workload that exercises the
// B+ tree index under real transactions so the three panels have something
// to show. The buffer pool and lock table panels always show this process's
// own managers; only the log panel reads what is on disk, so without -demo
// it shows records already in the log file.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"storemy/pkg/buffer/pool"
	"storemy/pkg/concurrency/lock"
	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/config"
	"storemy/pkg/index/btree"
	"storemy/pkg/logging"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/disk"
	"storemy/pkg/types"
	"storemy/pkg/wal"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	dataDir := flag.String("data", "./inspector-data", "directory holding the data and log files")
	dbName := flag.String("db", "inspect", "index name to open within the data file")
	demo := flag.Bool("demo", false, "run a background workload against the index so the panels have live data")
	flag.Parse()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("inspector: %v", err)
	}
	logging.InitDefault()
	defer logging.Close()

	cfg := config.Default()

	diskMgr, err := disk.NewFileManager(
		filepath.Join(*dataDir, *dbName+".db"),
		filepath.Join(*dataDir, *dbName+".log"),
		cfg.PageSize,
	)
	if err != nil {
		log.Fatalf("inspector: %v", err)
	}
	defer diskMgr.Close()

	logMgr := wal.New(diskMgr, cfg.LogBufferSize, cfg.LogFlushInterval)
	logMgr.Start()
	defer logMgr.Stop()

	poolMgr := pool.New(cfg.BufferPoolSize, cfg.PageSize, diskMgr, logMgr)
	lockMgr := lock.New(true)
	txnMgr := transaction.New(lockMgr, logMgr, true)

	tree, err := btree.Open(poolMgr, cfg.PageSize, *dbName, types.Int32KeyType)
	if err != nil {
		log.Fatalf("inspector: %v", err)
	}

	if *demo {
		go runDemoWorkload(tree, txnMgr, lockMgr)
	}

	src := source{
		pool:       poolMgr,
		lockMgr:    lockMgr,
		wal:        logMgr,
		logBufSize: cfg.LogBufferSize,
		readLog: func(bufSize int) ([]*wal.Record, error) {
			return wal.ReadAllRecords(diskMgr, bufSize)
		},
	}

	p := tea.NewProgram(newModel(src, *dbName), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("inspector: %v\n", err)
		os.Exit(1)
	}
}

// runDemoWorkload repeatedly inserts and removes keys under short-lived
// transactions, holding an exclusive lock on a synthetic RID per key so the
// lock table panel shows real grants (one goroutine, so no contention), the
// same role a demo-mode
// workload plays when it populates sample tables for a query UI to browse;
// this populates the index instead.
func runDemoWorkload(tree *btree.Tree, txnMgr *transaction.Manager, lockMgr *lock.Manager) {
	rnd := rand.New(rand.NewSource(1))
	present := map[int32]bool{}

	for {
		time.Sleep(150 * time.Millisecond)

		k := rnd.Int31n(1000)
		rid := primitives.RID{PageID: primitives.PageID(k), Slot: 0}

		txn, err := txnMgr.Begin()
		if err != nil {
			logging.WithError(err).Error("demo: begin failed")
			continue
		}

		if !lockMgr.LockExclusive(txn, rid) {
			_ = txnMgr.Abort(txn)
			continue
		}

		var opErr error
		if present[k] {
			opErr = tree.Remove(types.Int32Key(k))
			present[k] = false
		} else {
			opErr = tree.Insert(types.Int32Key(k), rid)
			present[k] = true
		}

		if opErr != nil {
			_ = txnMgr.Abort(txn)
			continue
		}
		if err := txnMgr.Commit(txn); err != nil {
			logging.WithError(err).Error("demo: commit failed")
		}
	}
}
