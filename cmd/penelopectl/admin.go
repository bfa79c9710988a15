package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"penelope-api/internal/handler"
)

// printResult は json 出力ならそのまま、text 出力なら render で表示する。
func printResult[T any](body []byte, render func(T)) error {
	if output == "json" {
		fmt.Println(string(body))
		return nil
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	render(v)
	return nil
}

// apiKeyCmd はAPIキー管理コマンド。
func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}

	var ownerName string
	var admin bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key (the public key is shown only once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			q := url.Values{"ownerName": {ownerName}, "admin": {strconv.FormatBool(admin)}}
			body, err := c.call(cmd.Context(), http.MethodPost, "/api/apikeys/new", q, http.StatusCreated)
			if err != nil {
				return err
			}
			return printResult(body, func(k handler.ProvisionedAPIKeyResponse) {
				fmt.Printf("Identity:   %s\n", k.Identity)
				fmt.Printf("Owner:      %s\n", k.OwnerName)
				fmt.Printf("Admin:      %t\n", k.Admin)
				fmt.Printf("Public key: %s\n", k.PublicKey)
			})
		},
	}
	create.Flags().StringVar(&ownerName, "owner", "", "Owner name (required)")
	create.Flags().BoolVar(&admin, "admin", false, "Grant admin scope")
	create.MarkFlagRequired("owner")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			body, err := c.call(cmd.Context(), http.MethodGet, "/api/apikeys/list", nil, http.StatusOK)
			if err != nil {
				return err
			}
			return printResult(body, func(l handler.APIKeyListResponse) {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "IDENTITY\tOWNER\tADMIN\tCAMPUSES")
				for _, k := range l.APIKeys {
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", k.Identity, k.OwnerName, k.Admin, joinIDs(k.Campuses))
				}
				w.Flush()
			})
		},
	}

	var target string
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove an API key and its private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			q := url.Values{"targetIdentity": {target}}
			if _, err := c.call(cmd.Context(), http.MethodDelete, "/api/apikeys/remove", q, http.StatusNoContent); err != nil {
				return err
			}
			fmt.Printf("Removed API key %s\n", target)
			return nil
		},
	}
	remove.Flags().StringVar(&target, "target", "", "Target identity (required)")
	remove.MarkFlagRequired("target")

	cmd.AddCommand(create, list, remove,
		campusRightCmd("grant", "/api/apikeys/addCampus", "targetIdentity", "campusId"),
		campusRightCmd("revoke", "/api/apikeys/removeCampus", "targetIdentity", "campusId"),
	)
	return cmd
}

// userCmd はデータ管理者管理コマンド。
func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage data managers",
	}

	var newUsername, newPassword string
	var sysadmin bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a data manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			q := url.Values{
				"username": {newUsername},
				"password": {newPassword},
				"sysadmin": {strconv.FormatBool(sysadmin)},
			}
			body, err := c.call(cmd.Context(), http.MethodPost, "/api/users/new", q, http.StatusCreated)
			if err != nil {
				return err
			}
			return printResult(body, func(u handler.DataManagerResponse) {
				fmt.Printf("Created user %q (sysadmin: %t)\n", u.Username, u.Sysadmin)
			})
		},
	}
	create.Flags().StringVar(&newUsername, "name", "", "Username (required)")
	create.Flags().StringVar(&newPassword, "new-password", "", "Password (required)")
	create.Flags().BoolVar(&sysadmin, "sysadmin", false, "Create as sysadmin")
	create.MarkFlagRequired("name")
	create.MarkFlagRequired("new-password")

	list := &cobra.Command{
		Use:   "list",
		Short: "List data managers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			body, err := c.call(cmd.Context(), http.MethodGet, "/api/users/list", nil, http.StatusOK)
			if err != nil {
				return err
			}
			return printResult(body, func(l handler.DataManagerListResponse) {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "USERNAME\tSYSADMIN\tCAMPUSES")
				for _, u := range l.DataManagers {
					fmt.Fprintf(w, "%s\t%t\t%s\n", u.Username, u.Sysadmin, joinIDs(u.Campuses))
				}
				w.Flush()
			})
		},
	}

	var target string
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove a data manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			q := url.Values{"username": {target}}
			if _, err := c.call(cmd.Context(), http.MethodDelete, "/api/users/remove", q, http.StatusNoContent); err != nil {
				return err
			}
			fmt.Printf("Removed user %s\n", target)
			return nil
		},
	}
	remove.Flags().StringVar(&target, "target", "", "Target username (required)")
	remove.MarkFlagRequired("target")

	cmd.AddCommand(create, list, remove,
		campusRightCmd("grant", "/api/users/addCampus", "username", "campusID"),
		campusRightCmd("revoke", "/api/users/removeCampus", "username", "campusID"),
	)
	return cmd
}

// campusRightCmd はキャンパス権限の付与・剥奪コマンドを生成する。
func campusRightCmd(use, path, targetParam, campusParam string) *cobra.Command {
	var target string
	var campusID uint64
	cmd := &cobra.Command{
		Use:   use,
		Short: use + " a campus right",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			q := url.Values{
				targetParam: {target},
				campusParam: {strconv.FormatUint(campusID, 10)},
			}
			if _, err := c.call(cmd.Context(), http.MethodPatch, path, q, http.StatusNoContent); err != nil {
				return err
			}
			fmt.Printf("%s campus %d for %s: done\n", use, campusID, target)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "Target identity or username (required)")
	cmd.Flags().Uint64Var(&campusID, "campus", 0, "Campus ID (required)")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("campus")
	return cmd
}

// campusCmd はキャンパス管理コマンド。
func campusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campus",
		Short: "Manage campuses",
	}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a campus",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			body, err := c.call(cmd.Context(), http.MethodPost, "/api/campus/new", url.Values{"name": {name}}, http.StatusCreated)
			if err != nil {
				return err
			}
			return printResult(body, func(cr handler.CampusResponse) {
				fmt.Printf("Created campus %q (id: %d)\n", cr.Name, cr.ID)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "Campus name (required)")
	create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List campuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			body, err := c.call(cmd.Context(), http.MethodGet, "/api/campus/list", nil, http.StatusOK)
			if err != nil {
				return err
			}
			return printResult(body, func(l handler.CampusListResponse) {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tAUTHOR\tCREATED_AT")
				for _, cr := range l.Campuses {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", cr.ID, cr.Name, cr.Author, cr.CreatedAt)
				}
				w.Flush()
			})
		},
	}

	var id uint64
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove a campus and its rights",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			q := url.Values{"id": {strconv.FormatUint(id, 10)}}
			if _, err := c.call(cmd.Context(), http.MethodDelete, "/api/campus/remove", q, http.StatusNoContent); err != nil {
				return err
			}
			fmt.Printf("Removed campus %d\n", id)
			return nil
		},
	}
	remove.Flags().Uint64Var(&id, "id", 0, "Campus ID (required)")
	remove.MarkFlagRequired("id")

	cmd.AddCommand(create, list, remove)
	return cmd
}
