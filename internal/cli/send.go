package cli

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"zerozero/pkg/models"
)

func init() {
	sendCmd.Flags().StringVar(&sendPin, "pin", "", "send on one of our own pins")
	sendCmd.Flags().StringVar(&sendShortKey, "short-key", "", "lobby sub-thread peer key")
	sendCmd.Flags().StringVar(&sendContact, "contact", "", "send to a contact by id")
	fileCmd.Flags().StringVar(&sendPin, "pin", "", "send on one of our own pins")
	fileCmd.Flags().StringVar(&sendShortKey, "short-key", "", "lobby sub-thread peer key")
	fileCmd.Flags().StringVar(&sendContact, "contact", "", "send to a contact by id")
	rootCmd.AddCommand(sendCmd, fileCmd)
}

var (
	sendPin      string
	sendShortKey string
	sendContact  string
)

var sendCmd = &cobra.Command{
	Use:   "send <content>",
	Short: "Send a message to a contact or on a pin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Message models.StoredMessage `json:"message"`
		}
		var err error
		switch {
		case sendContact != "":
			err = call(http.MethodPost, "/v1/contacts/"+sendContact+"/messages",
				map[string]string{"content": args[0]}, &out)
		case sendPin != "":
			err = call(http.MethodPost, "/v1/messages", map[string]string{
				"pin": sendPin, "shortKey": sendShortKey, "content": args[0],
			}, &out)
		default:
			return fmt.Errorf("one of --contact or --pin is required")
		}
		if err != nil {
			return err
		}
		if !flagJSON {
			fmt.Printf("sent (%s)\n", out.Message.Status)
		}
		return nil
	},
}

var fileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Send a file to a live peer",
	Long:  "File bytes are relayed directly, never stored; the peer must be online.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendContact == "" && sendPin == "" {
			return fmt.Errorf("one of --contact or --pin is required")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		name := filepath.Base(args[0])
		var out struct {
			Message models.StoredMessage `json:"message"`
		}
		if err := call(http.MethodPost, "/v1/files", map[string]string{
			"contactId": sendContact,
			"pin":       sendPin,
			"shortKey":  sendShortKey,
			"filename":  name,
			"mimeType":  mime.TypeByExtension(filepath.Ext(name)),
			"data":      base64.StdEncoding.EncodeToString(data),
		}, &out); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Printf("📎 sent %s (%s)\n", name, out.Message.Status)
		}
		return nil
	},
}
