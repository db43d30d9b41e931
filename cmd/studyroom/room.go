package main

import (
	"fmt"
	"io"
	"strings"

	"studyroom/internal/config"
	"studyroom/internal/models"
	"studyroom/pkg/backend"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newRoomCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Inspect and manage rooms",
	}

	// rooms builds the room API client for the configured user.
	rooms := func(cmd *cobra.Command) (*backend.Rooms, *models.Config, error) {
		cfg, err := opts.loadConfig()
		if err != nil {
			return nil, nil, err
		}
		if err := config.ValidateClient(cfg); err != nil {
			return nil, nil, err
		}
		logger := newLogger(cmd.ErrOrStderr(), false, "warn", opts.verbose)
		api, _ := newBackend(cfg, logger)
		return backend.NewRooms(api), cfg, nil
	}

	get := &cobra.Command{
		Use:   "get <room-id>",
		Short: "Show a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, _, err := rooms(cmd)
			if err != nil {
				return err
			}
			room, err := api.GetRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRoom(cmd.OutOrStdout(), room)
			return nil
		},
	}

	var name, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a room owned by the configured user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, _, err := rooms(cmd)
			if err != nil {
				return err
			}
			room, err := api.CreateRoom(cmd.Context(), models.CreateRoomRequest{
				Name:        strings.TrimSpace(name),
				Description: description,
			})
			if err != nil {
				return err
			}
			printRoom(cmd.OutOrStdout(), room)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "room name")
	create.Flags().StringVar(&description, "description", "", "room description")
	_ = create.MarkFlagRequired("name")

	var newName, newDescription string
	update := &cobra.Command{
		Use:   "update <room-id>",
		Short: "Change a room's name or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var change models.RoomUpdate
			if cmd.Flags().Changed("name") {
				change.Name = &newName
			}
			if cmd.Flags().Changed("description") {
				change.Description = &newDescription
			}
			if change.Empty() {
				return fmt.Errorf("nothing to update: pass --name and/or --description")
			}

			api, _, err := rooms(cmd)
			if err != nil {
				return err
			}
			room, err := api.UpdateRoom(cmd.Context(), args[0], change)
			if err != nil {
				return err
			}
			printRoom(cmd.OutOrStdout(), room)
			return nil
		},
	}
	update.Flags().StringVar(&newName, "name", "", "new room name")
	update.Flags().StringVar(&newDescription, "description", "", "new room description")

	del := &cobra.Command{
		Use:   "delete <room-id>",
		Short: "Delete a room you created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, cfg, err := rooms(cmd)
			if err != nil {
				return err
			}
			room, err := api.GetRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := api.DeleteOwnedRoom(cmd.Context(), room, cfg.Client.UserID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted room %s\n", room.ID)
			return nil
		},
	}

	cmd.AddCommand(get, create, update, del)
	return cmd
}

func printRoom(out io.Writer, room *models.Room) {
	fmt.Fprintf(out, "ID:           %s\n", room.ID)
	fmt.Fprintf(out, "Name:         %s\n", room.Name)
	if room.Description != "" {
		fmt.Fprintf(out, "Description:  %s\n", room.Description)
	}
	fmt.Fprintf(out, "Creator:      %s\n", room.CreatorID)
	fmt.Fprintf(out, "Participants: %s\n", strings.Join(room.Participants, ", "))
	fmt.Fprintf(out, "Created:      %s\n", humanize.Time(room.CreatedAt))
}
