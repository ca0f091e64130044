// Command claimgen generates labelled synthetic claims and, optionally,
// replays them against a running claimrisk server to score its alerts.
//
// Usage:
//
//	go run ./cmd/claimgen -n 1000 -out claims.json
//	go run ./cmd/claimgen -n 1000 -url http://localhost:8080
//
// In replay mode each claim is submitted to /api/claims, analyzed through
// /api/analysis/analyze and the high/critical verdicts are compared with
// the fraud labels.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/claimrisk/internal/claimgen"
	"github.com/opensource-finance/claimrisk/internal/domain"
	"github.com/opensource-finance/claimrisk/internal/fusion"
)

// Stats tracks replay progress.
type Stats struct {
	TotalProcessed   int64
	TotalErrors      int64
	ProcessingTimeMs int64
}

func main() {
	defaults := claimgen.DefaultOptions()
	count := flag.Int("n", defaults.Count, "Number of claims to generate")
	fraudRate := flag.Float64("fraud-rate", defaults.FraudRate, "Share of fraudulent claims (0.0-1.0)")
	seed := flag.Uint64("seed", defaults.Seed, "Random seed")
	out := flag.String("out", "-", "Output file for generated claims (- = stdout)")
	baseURL := flag.String("url", "", "claimrisk base URL; when set, claims are replayed instead of written")
	workers := flag.Int("workers", 10, "Number of concurrent workers in replay mode")
	verbose := flag.Bool("verbose", false, "Print each claim result in replay mode")
	flag.Parse()

	claims, err := claimgen.Generate(claimgen.Options{
		Count:     *count,
		FraudRate: *fraudRate,
		Seed:      *seed,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	if *baseURL == "" {
		if err := writeClaims(*out, claims); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: failed to write claims: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          CLAIMRISK REPLAY - Synthetic Claim Detection         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nServer:      %s\n", *baseURL)
	fmt.Printf("Claims:      %d\n", len(claims))
	fmt.Printf("Fraud Rate:  %.2f\n", *fraudRate)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: claimrisk not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("✓ claimrisk is healthy")

	fmt.Printf("\nReplaying with %d workers...\n", *workers)
	start := time.Now()
	matrix, stats := replay(claims, *baseURL, *workers, *verbose)
	printResults(matrix, stats, time.Since(start))
}

func writeClaims(path string, claims []claimgen.LabeledClaim) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(claims)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func replay(claims []claimgen.LabeledClaim, baseURL string, numWorkers int, verbose bool) (*claimgen.Confusion, *Stats) {
	matrix := &claimgen.Confusion{}
	stats := &Stats{}

	work := make(chan claimgen.LabeledClaim, 100)
	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				start := time.Now()
				result, err := submitAndAnalyze(client, baseURL, c)
				atomic.AddInt64(&stats.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&stats.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&stats.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", c.ID, err)
					}
					continue
				}

				predicted := fusion.ShouldAlert(result.RiskScore)
				matrix.Add(predicted, c.IsFraudulent)

				if verbose {
					mark := "✓"
					if predicted != c.IsFraudulent {
						mark = "✗"
					}
					fmt.Printf("%s %s | Amount: %12s | Provider: %-8s | Fraud: %-5v | Risk: %-8s (%.2f)\n",
						mark,
						c.ID,
						c.ClaimAmount.StringFixed(2),
						c.ProviderID,
						c.IsFraudulent,
						result.RiskScore.RiskLevel,
						result.RiskScore.OverallScore,
					)
				}
			}
		}()
	}

	for _, c := range claims {
		work <- c
	}
	close(work)
	wg.Wait()

	return matrix, stats
}

func submitAndAnalyze(client *http.Client, baseURL string, c claimgen.LabeledClaim) (*domain.AnalysisResult, error) {
	status, _, err := postJSON(client, baseURL+"/api/claims", c.Claim)
	if err != nil {
		return nil, err
	}
	// A rerun with the same seed finds its claims already stored.
	if status != http.StatusCreated && status != http.StatusConflict {
		return nil, fmt.Errorf("submit: status %d", status)
	}

	status, body, err := postJSON(client, baseURL+"/api/analysis/analyze", domain.AnalysisRequest{
		ClaimID:         c.ID,
		ForceReanalysis: true,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("analyze: status %d", status)
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func postJSON(client *http.Client, url string, v any) (int, []byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func printResults(m *claimgen.Confusion, s *Stats, duration time.Duration) {
	tp, fp, tn, fn := m.Snapshot()

	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        REPLAY RESULTS                         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", s.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", tp+fn)
	fmt.Printf("   Total Legitimate: %d\n", tn+fp)
	fmt.Printf("   Errors:           %d\n", s.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Printf("                      Predicted\n")
	fmt.Printf("                   Alert     No Alert\n")
	fmt.Printf("   Actual Fraud    %-9d %-9d\n", tp, fn)
	fmt.Printf("   Actual Legit    %-9d %-9d\n", fp, tn)

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %6.2f%%\n", 100*m.Precision())
	fmt.Printf("   Recall:     %6.2f%%\n", 100*m.Recall())
	fmt.Printf("   F1 Score:   %6.2f%%\n", 100*m.F1())
	fmt.Printf("   Accuracy:   %6.2f%%\n", 100*m.Accuracy())

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Duration:      %v\n", duration.Round(time.Millisecond))
	if s.TotalProcessed > 0 {
		fmt.Printf("   Avg Latency:   %.2f ms\n", float64(s.ProcessingTimeMs)/float64(s.TotalProcessed))
		fmt.Printf("   Throughput:    %.2f claims/sec\n", float64(s.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
