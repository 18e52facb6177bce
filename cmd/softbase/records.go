package main

import (
	"github.com/spf13/cobra"
)

func newCreateCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "create <key> <value>",
		Short: "Create a record (POST /create)",
		Long:  "Create a record. The value is parsed as JSON; anything that is not valid JSON is sent as a string.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := st.client().Create(cmd.Context(), args[0], parseValue(args[1]))
			if err != nil {
				return err
			}
			return st.print(resp)
		},
	}
}

func newReadCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "read <key>",
		Short: "Read a record (GET /read/{key})",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := st.client().Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return st.print(resp)
		},
	}
}

func newReadAllCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Read every record (GET /read)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := st.client().ReadAll(cmd.Context())
			if err != nil {
				return err
			}
			return st.print(resp)
		},
	}
}

func newUpdateCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "update <key> <value>",
		Short: "Replace a record value (PUT /update)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := st.client().Update(cmd.Context(), args[0], parseValue(args[1]))
			if err != nil {
				return err
			}
			return st.print(resp)
		},
	}
}

func newDeleteCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a record (DELETE /delete/{key})",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := st.client().Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return st.print(resp)
		},
	}
}

func newDeleteAllCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every record (DELETE /delete)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := st.client().DeleteAll(cmd.Context())
			if err != nil {
				return err
			}
			return st.print(resp)
		},
	}
}
