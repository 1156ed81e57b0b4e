package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Domusgpt/parserator-sub000/internal/architect"
	"github.com/Domusgpt/parserator-sub000/internal/extractor"
	"github.com/Domusgpt/parserator-sub000/internal/logger"
	"github.com/Domusgpt/parserator-sub000/internal/parse"
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse a document against a schema, one shot",
	Long: `Run the two-stage pipeline once: plan the extraction from the input,
execute it, and print the structured result as JSON.

The schema file maps field names to validation types (string, email,
number, iso_date, string_array, boolean, url, phone, json_object) and can
be JSON or YAML.

Examples:
  # Parse a file
  parserator parse -i invoice.txt -s schema.json

  # Parse stdin
  cat email.txt | parserator parse -i - -s schema.yaml

  # Add extraction guidance
  parserator parse -i data.txt -s schema.json \
      --instructions "amounts are in EUR"`,
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	flags := parseCmd.Flags()
	flags.StringP("input", "i", "", "input file, or - for stdin (required)")
	flags.StringP("schema", "s", "", "path to schema file (required)")
	flags.String("instructions", "", "extra guidance for the extraction")
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.Bool("full-result", false, "print the full result envelope including plan and confidence metadata")

	addProviderFlags(parseCmd)

	_ = parseCmd.MarkFlagRequired("input")
	_ = parseCmd.MarkFlagRequired("schema")
}

func runParse(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
		JSON:  viper.GetBool("log_json"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	inputPath, _ := cmd.Flags().GetString("input")
	inputData, err := readInput(inputPath)
	if err != nil {
		logError("%v", err)
		return err
	}

	schemaPath, _ := cmd.Flags().GetString("schema")
	schema, err := loadSchema(schemaPath)
	if err != nil {
		logError("%v", err)
		return err
	}
	logger.Debug("schema loaded", "path", schemaPath, "fields", len(schema))

	provider, err := buildProvider(ctx)
	if err != nil {
		logError("%v", err)
		return err
	}

	svc := parse.NewService(architect.New(provider), extractor.New(provider))

	instructions, _ := cmd.Flags().GetString("instructions")
	result, err := svc.Parse(ctx, parse.Request{
		InputData:    inputData,
		OutputSchema: schema,
		Instructions: instructions,
	})
	if err != nil {
		logError("%v", err)
		return err
	}
	if !result.Success {
		logError("parse failed at %s stage: [%s] %s", result.Err.Stage, result.Err.Code, result.Err.Message)
		return fmt.Errorf("parse failed: %s", result.Err.Code)
	}

	out := os.Stdout
	if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
		f, err := os.Create(outPath) //#nosec G304 -- CLI tool writes to user-specified output file
		if err != nil {
			logError("failed to create output file: %v", err)
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	fullResult, _ := cmd.Flags().GetBool("full-result")
	if fullResult {
		return enc.Encode(result)
	}
	return enc.Encode(result.ParsedData)
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path) //#nosec G304 -- CLI tool reads user-specified input file
	if err != nil {
		return "", fmt.Errorf("reading input file: %w", err)
	}
	return string(data), nil
}

// loadSchema reads a name→type map from a JSON or YAML file.
func loadSchema(path string) (map[string]string, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- CLI tool reads user-specified schema file
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}

	var schema map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &schema)
	default:
		err = json.Unmarshal(data, &schema)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing schema file: %w", err)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema file %s defines no fields", path)
	}
	return schema, nil
}
