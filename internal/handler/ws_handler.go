/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains HandleWebSocket, which upgrades a tab's connection and hands it to the tab hub,
and TabState, which builds the state a tab starts from.
*/
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"holidaze/internal/app/account"
	"holidaze/internal/app/tabs"
	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/logx"
	"holidaze/internal/pkg/randx"
	"holidaze/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc that connects a tab to the hub.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tabID, err := randx.TabID()
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		logx.Debug("WebSocket connection established", "tab_id", tabID)

		deps.Hub.Serve(conn, tabID)
	}
}

// TabState returns the hub state function over svc.
func TabState(svc *account.Service) tabs.StateFunc {
	return func(ctx context.Context) (tabs.InitPayload, error) {
		appearance, err := svc.Appearance(ctx)
		if err != nil {
			return tabs.InitPayload{}, err
		}

		return tabs.InitPayload{
			Session:    svc.Session.Snapshot(),
			Favorites:  svc.Favorites.List(),
			Appearance: appearance,
		}, nil
	}
}
