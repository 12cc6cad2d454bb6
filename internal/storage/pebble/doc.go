// Package pebblestore is the embedded storage driver: a small wrapper over
// Pebble that applies the configured fsync policy to every commit, exposes
// forward and reverse prefix scans for the tenant-scoped key spaces, and
// reports operation latencies to an Observer.
//
//	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	b := db.NewBatch()
//	defer b.Close()
//	_ = b.Set(key, value, nil)
//	err = db.CommitBatch(ctx, b)
package pebblestore
