package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/replweb/config"
	"github.com/d60-Lab/replweb/internal/logstore"
	"github.com/d60-Lab/replweb/internal/repository"
	"github.com/d60-Lab/replweb/pkg/database"
)

func must[T any](v T, err error) T { if err != nil { panic(err) }; return v }

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 { return 0 }
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 { k = 0 }
	if k >= len(xs) { k = len(xs)-1 }
	return xs[k]
}

func memCfg(name string) *config.Config {
	return &config.Config{Database: config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MemMB:  10,
	}}
}

func main() {
	// params
	N := 5000                 // transactions to ship
	STMTS := 4                // statements per batch
	if s := os.Getenv("N"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { N = v } }
	if s := os.Getenv("STMTS"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { STMTS = v } }

	ctx := context.Background()
	leaderDB := must(database.InitDB(memCfg("replbench_leader")))
	followerDB := must(database.InitDB(memCfg("replbench_follower")))

	leader := logstore.NewStore(leaderDB, true)
	follower := logstore.NewStore(followerDB, false)
	txlog := repository.NewTxLogRepository(leaderDB)

	// seed leader log
	appendSt := time.Now()
	for i := 0; i < N; i++ {
		batch := make(logstore.Batch, 0, STMTS)
		for j := 0; j < STMTS; j++ {
			batch = append(batch, logstore.Statement{
				SQL:  "INSERT INTO scheduled_jobs (id, name, due_at, attempt, created_at) VALUES (?, ?, ?, ?, ?)",
				Args: []interface{}{uuid.New().String(), "bench.noop", time.Now(), 0, time.Now()},
			})
		}
		if _, err := leader.Exec(ctx, batch); err != nil { panic(err) }
	}
	appendDur := time.Since(appendSt)

	// replay on follower, one transaction per record
	recs := must(txlog.All(ctx))
	applyDurations := make([]time.Duration, 0, len(recs))
	for _, rec := range recs {
		st := time.Now()
		if err := follower.Apply(ctx, rec.ID, rec.Payload); err != nil { panic(err) }
		applyDurations = append(applyDurations, time.Since(st))
	}

	// output
	var applySum time.Duration
	for _, d := range applyDurations { applySum += d }
	fmt.Printf("N=%d STMTS=%d\n", N, STMTS)
	fmt.Printf("Leader append: total=%v avg=%v\n", appendDur, appendDur/time.Duration(N))
	fmt.Printf("Follower apply: avg=%v p95=%v p99=%v\n",
		applySum/time.Duration(len(applyDurations)), pct(applyDurations, 0.95), pct(applyDurations, 0.99))
}
