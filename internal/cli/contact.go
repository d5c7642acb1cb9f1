package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"zerozero/pkg/models"
)

func init() {
	contactCmd.AddCommand(contactAddCmd, contactListCmd, contactLabelCmd, contactRemoveCmd)
	contactAddCmd.Flags().StringVar(&contactAddLabel, "label", "", "label for the contact")
	rootCmd.AddCommand(contactCmd)
}

var contactAddLabel string

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Manage contacts",
}

var contactAddCmd = &cobra.Command{
	Use:   "add <number> <pin>",
	Short: "Add a contact and open its channel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Contact models.Contact `json:"contact"`
		}
		if err := call(http.MethodPost, "/v1/contacts", map[string]string{
			"number": args[0], "pin": args[1], "label": contactAddLabel,
		}, &out); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Printf("👤 added %s (%s)\n", out.Contact.TheirNumber, out.Contact.ID)
		}
		return nil
	},
}

var contactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Contacts []models.ContactEntry `json:"contacts"`
		}
		if err := call(http.MethodGet, "/v1/contacts", nil, &out); err != nil {
			return err
		}
		if flagJSON {
			return nil
		}
		if len(out.Contacts) == 0 {
			fmt.Println("no contacts")
			return nil
		}
		fmt.Printf("%-22s %-18s %-12s %s\n", "ID", "NUMBER", "MESSAGES", "LABEL")
		for _, e := range out.Contacts {
			msgs := fmt.Sprintf("%d", e.MessageCount)
			if e.Unread > 0 {
				msgs = fmt.Sprintf("%d (%d new)", e.MessageCount, e.Unread)
			}
			fmt.Printf("%-22s %-18s %-12s %s\n", e.Contact.ID, e.Contact.TheirNumber, msgs, e.Contact.Label)
		}
		return nil
	},
}

var contactLabelCmd = &cobra.Command{
	Use:   "label <contact-id> <label>",
	Short: "Relabel a contact",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodPut, "/v1/contacts/"+args[0]+"/label", map[string]string{"label": args[1]}, nil); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Println("ok")
		}
		return nil
	},
}

var contactRemoveCmd = &cobra.Command{
	Use:   "remove <contact-id>",
	Short: "Remove a contact and close its channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodDelete, "/v1/contacts/"+args[0], nil, nil); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Println("removed")
		}
		return nil
	},
}
