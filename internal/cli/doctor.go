package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/xerolink/xerolink/internal/config"
	"github.com/xerolink/xerolink/internal/secrets"
	"github.com/xerolink/xerolink/internal/store"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration and connectivity issues",
	Long: `Perform a system diagnostic for XeroLink.

This command checks:
- Configuration file presence and validity
- SQLite database accessibility
- Secret encryption key setup
- Xero identity endpoint reachability

Example:
  xerolink doctor`,
	RunE: runDoctor,
}

var doctorJSON bool

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output in JSON format")
	RootCmd.AddCommand(doctorCmd)
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp time.Time     `json:"timestamp"`
	GoVersion string        `json:"go_version"`
	OS        string        `json:"os"`
	Checks    []DoctorCheck `json:"checks"`
}

// DoctorCheck is one diagnostic result
type DoctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	checkOK   = "ok"
	checkWarn = "warn"
	checkFail = "fail"
)

func runDoctor(cmd *cobra.Command, args []string) error {
	report := DoctorReport{
		Timestamp: time.Now().UTC(),
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS + "/" + runtime.GOARCH,
	}

	cfg, check := checkConfig()
	report.Checks = append(report.Checks, check)

	if cfg != nil {
		report.Checks = append(report.Checks,
			checkDatabase(cfg),
			checkEncryption(cfg),
			checkXeroReachable(cfg),
		)
	}

	return outputDoctorReport(report)
}

func checkConfig() (*config.Config, DoctorCheck) {
	cfg, err := config.NewLoader(globalFlags.Config).Load()
	if err != nil {
		return nil, DoctorCheck{
			Name:    "configuration",
			Status:  checkFail,
			Message: err.Error(),
		}
	}
	return cfg, DoctorCheck{
		Name:    "configuration",
		Status:  checkOK,
		Message: globalFlags.Config,
	}
}

func checkDatabase(cfg *config.Config) DoctorCheck {
	dbPath := cfg.Database.Path
	if RootCmd.PersistentFlags().Changed("db") {
		dbPath = globalFlags.DBPath
	}

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return DoctorCheck{Name: "database", Status: checkFail, Message: err.Error()}
	}
	defer st.Close()

	return DoctorCheck{Name: "database", Status: checkOK, Message: dbPath}
}

func checkEncryption(cfg *config.Config) DoctorCheck {
	box, err := secrets.NewBox(cfg.Xero.EncryptionKey)
	if err != nil {
		return DoctorCheck{Name: "encryption", Status: checkFail, Message: err.Error()}
	}
	if !box.Enabled() {
		return DoctorCheck{
			Name:    "encryption",
			Status:  checkWarn,
			Message: "no encryption key configured, secrets will be stored in plaintext",
		}
	}
	return DoctorCheck{Name: "encryption", Status: checkOK}
}

func checkXeroReachable(cfg *config.Config) DoctorCheck {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Head(cfg.Xero.TokenURL)
	if err != nil {
		return DoctorCheck{Name: "xero_identity", Status: checkFail, Message: err.Error()}
	}
	resp.Body.Close()

	return DoctorCheck{
		Name:    "xero_identity",
		Status:  checkOK,
		Message: fmt.Sprintf("%s (%d)", cfg.Xero.TokenURL, resp.StatusCode),
	}
}

func outputDoctorReport(report DoctorReport) error {
	if doctorJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("XeroLink diagnostic (%s, %s)\n\n", report.GoVersion, report.OS)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
	failed := false
	for _, check := range report.Checks {
		fmt.Fprintf(w, "%s\t%s\t%s\n", check.Name, check.Status, check.Message)
		if check.Status == checkFail {
			failed = true
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if failed {
		return fmt.Errorf("one or more checks failed")
	}
	return nil
}
