package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to compoundrag! Let's configure the service.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"openai", "ollama", "none"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)
	cfg.ApplyPreset(provider)
	if provider == ProviderNone {
		cfg.LLM.Provider = ProviderNone
		cfg.LLM.Model = ""
		cfg.ApplyPreset(ProviderHash)
	}

	if provider != ProviderNone {
		modelPrompt := promptui.Prompt{Label: "Chat model", Default: cfg.LLM.Model}
		if cfg.LLM.Model, err = modelPrompt.Run(); err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}
	}

	dataPrompt := promptui.Prompt{Label: "Data directory", Default: cfg.DataDir}
	if cfg.DataDir, err = dataPrompt.Run(); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	policyPrompt := promptui.Select{
		Label: "When an upload duplicates an existing document",
		Items: []string{"reject", "flag"},
	}
	_, policy, err := policyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("duplicate policy: %w", err)
	}
	cfg.Ingestion.DuplicatePolicy = DuplicatePolicy(policy)

	capPrompt := promptui.Prompt{
		Label:   "Row cap for database queries",
		Default: strconv.Itoa(cfg.Structured.RowCap),
		Validate: func(s string) error {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil || n <= 0 {
				return fmt.Errorf("enter a positive number")
			}
			return nil
		},
	}
	capStr, err := capPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("row cap: %w", err)
	}
	cfg.Structured.RowCap, _ = strconv.Atoi(strings.TrimSpace(capStr))

	if envVar := APIKeyEnvVar(provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running compoundrag server.\n", envVar)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}
