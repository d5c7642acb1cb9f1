package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"zerozero/pkg/models"
)

func init() {
	pinCmd.AddCommand(pinNewCmd, pinListCmd, pinRotateCmd, pinRevokeCmd, pinLabelCmd)
	pinNewCmd.Flags().StringVar(&pinNewLabel, "label", "", "label for the new pin")
	pinNewCmd.Flags().StringVar(&pinNewExpiry, "expiry", "", "expiry like 12h, 3d or 1w")
	pinNewCmd.Flags().BoolVar(&pinNewLobby, "lobby", false, "create a shareable lobby pin")
	rootCmd.AddCommand(pinCmd)
}

var (
	pinNewLabel  string
	pinNewExpiry string
	pinNewLobby  bool
)

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Manage pins",
}

var pinNewCmd = &cobra.Command{
	Use:   "new [value]",
	Short: "Create a pin (value generated when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := ""
		if len(args) == 1 {
			value = args[0]
		}
		typ := "direct"
		if pinNewLobby {
			typ = "lobby"
		}
		var out struct {
			Pin models.Pin `json:"pin"`
			URI string     `json:"uri"`
		}
		if err := call(http.MethodPost, "/v1/pins", map[string]string{
			"value": value, "label": pinNewLabel, "type": typ, "expiry": pinNewExpiry,
		}, &out); err != nil {
			return err
		}
		if flagJSON {
			return nil
		}
		fmt.Printf("📌 %s pin %s\n", out.Pin.Type, out.Pin.Value)
		fmt.Printf("   share: %s\n", out.URI)
		return nil
	},
}

var pinListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all pins",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Pins []models.Pin `json:"pins"`
		}
		if err := call(http.MethodGet, "/v1/pins", nil, &out); err != nil {
			return err
		}
		if flagJSON {
			return nil
		}
		if len(out.Pins) == 0 {
			fmt.Println("no pins")
			return nil
		}
		fmt.Printf("%-18s %-16s %-7s %-8s %s\n", "ID", "VALUE", "TYPE", "STATE", "LABEL")
		for _, p := range out.Pins {
			state := "active"
			if !p.IsActive {
				state = "revoked"
			} else if p.ExpiresAt > 0 {
				state = "expires"
			}
			fmt.Printf("%-18s %-16s %-7s %-8s %s\n", p.ID, p.Value, p.Type, state, p.Label)
		}
		return nil
	},
}

var pinRotateCmd = &cobra.Command{
	Use:   "rotate <pin-id> [new-value]",
	Short: "Rotate a pin's value, keeping its conversation",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		if len(args) == 2 {
			body["value"] = args[1]
		}
		var out struct {
			Pin models.Pin `json:"pin"`
			URI string     `json:"uri"`
		}
		if err := call(http.MethodPost, "/v1/pins/"+args[0]+"/rotate", body, &out); err != nil {
			return err
		}
		if flagJSON {
			return nil
		}
		fmt.Printf("🔄 rotated to %s\n", out.Pin.Value)
		fmt.Printf("   share: %s\n", out.URI)
		return nil
	},
}

var pinRevokeCmd = &cobra.Command{
	Use:   "revoke <pin-id>",
	Short: "Revoke a pin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodDelete, "/v1/pins/"+args[0], nil, nil); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Println("revoked")
		}
		return nil
	},
}

var pinLabelCmd = &cobra.Command{
	Use:   "label <pin-id> <label>",
	Short: "Relabel a pin",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodPut, "/v1/pins/"+args[0]+"/label", map[string]string{"label": args[1]}, nil); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Println("ok")
		}
		return nil
	},
}
