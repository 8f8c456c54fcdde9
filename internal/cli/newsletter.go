package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/service/newsletter"
)

var (
	newsletterID   string
	subject        string
	htmlFile       string
	recipientsFile string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft newsletter",
	RunE: func(cmd *cobra.Command, args []string) error {
		if subject == "" || htmlFile == "" {
			return fmt.Errorf("--subject and --html are required")
		}
		html, err := os.ReadFile(htmlFile)
		if err != nil {
			return fmt.Errorf("read html: %w", err)
		}
		id := newsletterID
		if id == "" {
			id = uuid.NewString()
		}

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		n := &domain.Newsletter{ID: id, Subject: subject, HTMLContent: string(html), State: domain.Draft{}}
		if err := env.delivery.Newsletters.Create(cmd.Context(), n); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created newsletter %s\n", id)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Dispatch a newsletter and wait for the final report",
	Long: `Send a newsletter to the addresses listed in --recipients (one per
line or comma separated; blank lines and # comments are ignored). Retry
waves run before the command returns.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if newsletterID == "" || recipientsFile == "" {
			return fmt.Errorf("--id and --recipients are required")
		}
		f, err := os.Open(recipientsFile)
		if err != nil {
			return fmt.Errorf("open recipients: %w", err)
		}
		recipients, err := ReadRecipients(f)
		f.Close()
		if err != nil {
			return err
		}

		var html string
		if htmlFile != "" {
			data, err := os.ReadFile(htmlFile)
			if err != nil {
				return fmt.Errorf("read html: %w", err)
			}
			html = string(data)
		}

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.delivery.Dispatcher.Dispatch(cmd.Context(), newsletter.Request{
			NewsletterID: newsletterID,
			Recipients:   recipients,
			HTML:         html,
			Subject:      subject,
			Settings:     env.cfg.Delivery,
		})
		if report != nil {
			printJSON(cmd.OutOrStdout(), report)
		}
		return err
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry the failed addresses of the initial send",
	Long: `Start a fresh retry ladder for every address that failed in the
initial wave and run it to completion.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if newsletterID == "" {
			return fmt.Errorf("--id is required")
		}
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.delivery.Newsletters.Get(cmd.Context(), newsletterID)
		if err != nil {
			return err
		}
		if err := env.delivery.Retries.InitializeRetry(cmd.Context(), newsletterID, n.Progress.Initial.ChunkResults); err != nil {
			return err
		}
		report, err := env.delivery.Dispatcher.Resume(cmd.Context(), newsletterID, env.cfg.Delivery)
		if report != nil {
			printJSON(cmd.OutOrStdout(), report)
		}
		return err
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engagement statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if newsletterID == "" {
			return fmt.Errorf("--id is required")
		}
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.delivery.Tracker.Summary(cmd.Context(), newsletterID)
		if err != nil {
			return err
		}
		printJSON(cmd.OutOrStdout(), summary)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{createCmd, sendCmd, retryCmd, statsCmd} {
		c.Flags().StringVar(&newsletterID, "id", "", "newsletter id")
	}
	createCmd.Flags().StringVar(&subject, "subject", "", "subject line")
	createCmd.Flags().StringVar(&htmlFile, "html", "", "HTML body file")
	sendCmd.Flags().StringVar(&subject, "subject", "", "override the stored subject")
	sendCmd.Flags().StringVar(&htmlFile, "html", "", "override the stored HTML body")
	sendCmd.Flags().StringVar(&recipientsFile, "recipients", "", "recipient list file")
}

// ReadRecipients parses a recipient list. Addresses may be separated by
// newlines or commas; display names are stripped.
func ReadRecipients(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		for _, field := range strings.Split(text, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			addr, err := mail.ParseAddress(field)
			if err != nil {
				return nil, fmt.Errorf("line %d: %q: %w", line, field, err)
			}
			out = append(out, addr.Address)
		}
	}
	return out, sc.Err()
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
