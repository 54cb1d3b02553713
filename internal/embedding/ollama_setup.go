package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"jobkb/internal/kb"
)

type ollamaTags struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

type ollamaPullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// EnsureOllamaModel checks that the Ollama server at baseURL is reachable and
// pulls model if it is not installed yet.
func EnsureOllamaModel(ctx context.Context, client *http.Client, baseURL, model string) error {
	if client == nil {
		client = http.DefaultClient
	}
	baseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/api")

	installed, err := ollamaHasModel(ctx, client, baseURL, model)
	if err != nil {
		return err
	}
	if installed {
		log.Printf("Model %s is available", model)
		return nil
	}

	log.Printf("Model %s not found, pulling...", model)
	body, _ := json.Marshal(ollamaPullRequest{Name: model, Stream: false})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &kb.ProviderError{Op: "pull " + model, Retryable: true, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &kb.ProviderError{Op: "pull " + model, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	log.Printf("Model %s pulled successfully", model)
	return nil
}

func ollamaHasModel(ctx context.Context, client *http.Client, baseURL, model string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("build tags request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, &kb.ProviderError{
			Op:        "list models",
			Retryable: true,
			Err:       fmt.Errorf("ollama is not running or not reachable at %s: %w", baseURL, err),
		}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, &kb.ProviderError{Op: "list models", Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	var tags ollamaTags
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, &kb.ProviderError{Op: "list models", Err: fmt.Errorf("decode: %w", err)}
	}
	for _, m := range tags.Models {
		// Ollama reports "nomic-embed-text:latest" for "nomic-embed-text".
		for _, name := range []string{m.Name, m.Model} {
			if name == model || strings.TrimSuffix(name, ":latest") == model {
				return true, nil
			}
		}
	}
	return false, nil
}
