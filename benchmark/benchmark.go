package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/trainops/coachms/benchmark/client"
)

// Measures the full SICKLINE workflow against the seeded roster:
// start -> autosave -> raise defect -> submit -> resolve -> complete.

type startSessionResponse struct {
	Session struct {
		ID string `json:"ID"`
	} `json:"session"`
}

type raiseDefectResponse struct {
	Defect struct {
		ID string `json:"ID"`
	} `json:"defect"`
}

const (
	inspectorID = "INS-001"
	coachID     = "21225-B1"
	module      = "SICKLINE"
)

// Seeded SICKLINE checklist, all applicable to the benchmark coach.
var questionIDs = []string{"Q-SL-001", "Q-SL-002", "Q-SL-003", "Q-SL-004", "Q-SL-005", "Q-SL-006"}

type RequestResult struct {
	Name     string
	Method   string
	Endpoint string
	Latency  time.Duration
}

func main() {
	iterations := flag.Int("n", 1, "Number of iterations to run")
	baseURL := flag.String("url", "http://127.0.0.1:5000", "Service base URL")
	flag.Parse()

	filename := fmt.Sprintf("benchmark_n_%d.csv", *iterations)
	file, err := os.Create(filename)
	if err != nil {
		fmt.Printf("Error creating CSV file: %v\n", err)
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Iteration", "Step", "Method", "Endpoint", "Latency_ms"}
	if err := writer.Write(header); err != nil {
		fmt.Printf("Error writing CSV header: %v\n", err)
		return
	}

	requestClient := client.NewHTTPClient(*baseURL)
	opts := &client.RequestOptions{
		Headers: map[string]string{
			"Accept":         "*/*",
			"X-Inspector-ID": inspectorID,
			"X-Role":         "inspector",
		},
		Timeout: 10 * time.Second,
	}

	for i := 0; i < *iterations; i++ {
		fmt.Printf("\n[Iteration %d/%d]\n", i+1, *iterations)
		results := runBenchmark(requestClient, opts)

		for _, result := range results {
			record := []string{
				strconv.Itoa(i + 1),
				result.Name,
				result.Method,
				result.Endpoint,
				strconv.FormatInt(result.Latency.Milliseconds(), 10),
			}

			if err := writer.Write(record); err != nil {
				fmt.Printf("Error writing record to CSV: %v\n", err)
			}
		}

		time.Sleep(100 * time.Millisecond)
	}

	fmt.Printf("\nBenchmark complete. Results saved to %s\n", filename)
}

func runBenchmark(requestClient *client.HTTPClient, opts *client.RequestOptions) []RequestResult {
	var results []RequestResult
	totalStart := time.Now()

	// 1. Start Session
	start := time.Now()
	body := map[string]interface{}{
		"module":   module,
		"coach_id": coachID,
	}
	resp, err := requestClient.POST("/session/start", body, opts)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Println(err)
		return results
	}
	var startResp startSessionResponse
	client.UnmarshalBody(resp, &startResp)
	sessionID := startResp.Session.ID
	fmt.Printf("SessionID : %s [Delay: %v]\n", sessionID, elapsed)

	results = append(results, RequestResult{
		Name:     "Start Session",
		Method:   "POST",
		Endpoint: "/session/start",
		Latency:  elapsed,
	})

	// 2. Autosave Answers (all but the last question; that one gets a defect)
	time.Sleep(100 * time.Millisecond)
	start = time.Now()
	answers := make([]map[string]interface{}, 0, len(questionIDs)-1)
	for _, qid := range questionIDs[:len(questionIDs)-1] {
		answers = append(answers, map[string]interface{}{
			"question_id": qid,
			"value":       map[string]interface{}{"ok": true},
		})
	}
	endpoint := fmt.Sprintf("/session/%s/answers", sessionID)
	_, err = requestClient.POST(endpoint, map[string]interface{}{"answers": answers}, opts)
	elapsed = time.Since(start)
	if err != nil {
		fmt.Println(err)
		return results
	}
	fmt.Printf("Autosave success [Delay: %v]\n", elapsed)

	results = append(results, RequestResult{
		Name:     "Autosave Answers",
		Method:   "POST",
		Endpoint: "session/:id/answers",
		Latency:  elapsed,
	})

	// 3. Raise Defect
	time.Sleep(100 * time.Millisecond)
	start = time.Now()
	body = map[string]interface{}{
		"session_id":   sessionID,
		"question_id":  questionIDs[len(questionIDs)-1],
		"before_photo": "s3://inspections/before.jpg",
	}
	resp, err = requestClient.POST("/defect", body, opts)
	elapsed = time.Since(start)
	if err != nil {
		fmt.Println(err)
		return results
	}
	var defectResp raiseDefectResponse
	client.UnmarshalBody(resp, &defectResp)
	defectID := defectResp.Defect.ID
	fmt.Printf("DefectID : %s [Delay: %v]\n", defectID, elapsed)

	results = append(results, RequestResult{
		Name:     "Raise Defect",
		Method:   "POST",
		Endpoint: "/defect",
		Latency:  elapsed,
	})

	// 4. Submit Session
	time.Sleep(100 * time.Millisecond)
	start = time.Now()
	endpoint = fmt.Sprintf("/session/%s/submit", sessionID)
	_, err = requestClient.POST(endpoint, nil, opts)
	elapsed = time.Since(start)
	if err != nil {
		fmt.Println(err)
		return results
	}
	fmt.Printf("Session submitted [Delay: %v]\n", elapsed)

	results = append(results, RequestResult{
		Name:     "Submit Session",
		Method:   "POST",
		Endpoint: "session/:id/submit",
		Latency:  elapsed,
	})

	// 5. Resolve Defect
	time.Sleep(100 * time.Millisecond)
	start = time.Now()
	endpoint = fmt.Sprintf("/defect/%s/resolve", defectID)
	body = map[string]interface{}{
		"after_photo": "s3://inspections/after.jpg",
	}
	_, err = requestClient.POST(endpoint, body, opts)
	elapsed = time.Since(start)
	if err != nil {
		fmt.Println(err)
		return results
	}
	fmt.Printf("Defect resolved [Delay: %v]\n", elapsed)

	results = append(results, RequestResult{
		Name:     "Resolve Defect",
		Method:   "POST",
		Endpoint: "defect/:id/resolve",
		Latency:  elapsed,
	})

	// 6. Complete Session
	time.Sleep(100 * time.Millisecond)
	start = time.Now()
	endpoint = fmt.Sprintf("/session/%s/complete", sessionID)
	_, err = requestClient.POST(endpoint, nil, opts)
	elapsed = time.Since(start)
	if err != nil {
		fmt.Println(err)
		return results
	}
	fmt.Printf("Session %s completed [Delay: %v]\n", sessionID, elapsed)

	results = append(results, RequestResult{
		Name:     "Complete Session",
		Method:   "POST",
		Endpoint: "session/:id/complete",
		Latency:  elapsed,
	})

	totalElapsed := time.Since(totalStart)
	fmt.Printf("\nTotal workflow execution time: %v\n", totalElapsed)

	results = append(results, RequestResult{
		Name:     "Complete Workflow",
		Method:   "WORKFLOW",
		Endpoint: "complete-workflow",
		Latency:  totalElapsed,
	})

	return results
}
