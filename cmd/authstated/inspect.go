package main

import (
	"io"
	"strings"

	authstate "github.com/goliatone/go-auth-state"
	"github.com/goliatone/go-print"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newInspectCmd(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [payload]",
		Short: "Restore a persisted payload and print the client principal",
		Long: `inspect runs the client side of the hand-off: it restores the payload a
page carries, reads the user snapshot and prints the resulting principal.
The payload is read from stdin when no argument is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			restored, err := authstate.RestorePersistentState(payload)
			if err != nil {
				return err
			}

			client := authstate.NewClientStateProvider(restored,
				authstate.WithClientClaimTypes(app.Config().GetIdentity().GetClaimTypes()),
				authstate.WithClientLoggerProvider(app.logger),
			)

			return printPrincipal(cmd.OutOrStdout(), client.Principal(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the principal as JSON")

	return cmd
}

func readPayload(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

type principalView struct {
	Authenticated      bool              `json:"authenticated"`
	AuthenticationType string            `json:"authentication_type,omitempty"`
	Claims             []authstate.Claim `json:"claims"`
}

func printPrincipal(w io.Writer, p *authstate.Principal, asJSON bool) error {
	view := principalView{
		Authenticated:      p.IsAuthenticated(),
		AuthenticationType: p.AuthenticationType(),
		Claims:             p.Claims(),
	}

	if asJSON {
		_, err := io.WriteString(w, print.MaybePrettyJSON(view)+"\n")
		return err
	}

	if !view.Authenticated {
		pterm.Fprintln(w, pterm.Warning.Sprint("anonymous principal"))
		return nil
	}

	data := pterm.TableData{{"TYPE", "VALUE"}}
	for _, c := range view.Claims {
		data = append(data, []string{c.Type, c.Value})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}

	pterm.Fprintln(w, pterm.Info.Sprintf("authenticated as %s", view.AuthenticationType))
	pterm.Fprintln(w, table)
	return nil
}
