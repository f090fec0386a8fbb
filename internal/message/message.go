// Package message defines the clipkeep cross-context protocol: the request
// variants a capture agent or UI may send to the coordinator, the response
// envelope, and the broadcast notifications pushed back.
//
// On the wire every request is a flat JSON object carrying an "action" tag
// next to the action's own fields, e.g.
//
//	{"action":"addToHistory","text":"hello","source":"example.com"}
package message

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"go.klb.dev/clipkeep/internal/model"
)

// Action identifies a request variant.
type Action string

const (
	ActionAddToHistory      Action = "addToHistory"
	ActionRemoveFromHistory Action = "removeFromHistory"
	ActionTogglePin         Action = "togglePin"
	ActionClearHistory      Action = "clearHistory"
	ActionAddSnippet        Action = "addSnippet"
	ActionRemoveSnippet     Action = "removeSnippet"
	ActionRefresh           Action = "refreshExtension"
	ActionUseSnippet        Action = "useSnippet"
	ActionPageActivated     Action = "pageActivated"
	ActionQuickPaste        Action = "quickPaste"
	ActionPasteLast         Action = "pasteLast"
	ActionHideQuickPaste    Action = "hideQuickPaste"
	ActionMenuClick         Action = "menuClick"
	ActionSaveSettings      Action = "saveSettings"
	ActionResetSettings     Action = "resetSettings"
	ActionClearAll          Action = "clearAll"
	ActionImportData        Action = "importData"
)

// ErrUnknownAction is returned by DecodeRequest for an unrecognised tag.
var ErrUnknownAction = errors.New("Unknown action")

// Request is the closed set of coordinator requests. Each variant routes
// itself to the matching Handler method, so a new variant does not compile
// until Handler grows a method for it.
//
//sumtype:decl
type Request interface {
	Action() Action
	Dispatch(ctx context.Context, h Handler) Response
	sealed()
}

// Handler serves every Request variant.
type Handler interface {
	HandleAddToHistory(context.Context, AddToHistory) Response
	HandleRemoveFromHistory(context.Context, RemoveFromHistory) Response
	HandleTogglePin(context.Context, TogglePin) Response
	HandleClearHistory(context.Context, ClearHistory) Response
	HandleAddSnippet(context.Context, AddSnippet) Response
	HandleRemoveSnippet(context.Context, RemoveSnippet) Response
	HandleRefresh(context.Context, Refresh) Response
	HandleUseSnippet(context.Context, UseSnippet) Response
	HandlePageActivated(context.Context, PageActivated) Response
	HandleQuickPaste(context.Context, QuickPaste) Response
	HandlePasteLast(context.Context, PasteLast) Response
	HandleHideQuickPaste(context.Context, HideQuickPaste) Response
	HandleMenuClick(context.Context, MenuClick) Response
	HandleSaveSettings(context.Context, SaveSettings) Response
	HandleResetSettings(context.Context, ResetSettings) Response
	HandleClearAll(context.Context, ClearAll) Response
	HandleImportData(context.Context, ImportData) Response
}

type AddToHistory struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

type RemoveFromHistory struct {
	ItemID string `json:"itemId"`
}

type TogglePin struct {
	ItemID string `json:"itemId"`
}

type ClearHistory struct{}

type AddSnippet struct {
	Text  string `json:"text"`
	Title string `json:"title"`
}

type RemoveSnippet struct {
	SnippetID string `json:"snippetId"`
}

// Refresh restarts the clipboard watcher and rebuilds the context menu.
type Refresh struct{}

// UseSnippet records that a snippet was copied and returns it.
type UseSnippet struct {
	SnippetID string `json:"snippetId"`
}

// PageActivated tells the coordinator which page is in the foreground.
type PageActivated struct {
	URL string `json:"url"`
}

type QuickPaste struct{}

type PasteLast struct{}

type HideQuickPaste struct{}

// MenuClick reports a click on a context-menu item.
type MenuClick struct {
	MenuItemID    string `json:"menuItemId"`
	SelectionText string `json:"selectionText,omitempty"`
}

type SaveSettings struct {
	Settings model.Settings `json:"settings"`
}

type ResetSettings struct{}

type ClearAll struct{}

// ImportData carries a backup document to merge into the store.
type ImportData struct {
	Data json.RawMessage `json:"data"`
}

func (AddToHistory) Action() Action      { return ActionAddToHistory }
func (RemoveFromHistory) Action() Action { return ActionRemoveFromHistory }
func (TogglePin) Action() Action         { return ActionTogglePin }
func (ClearHistory) Action() Action      { return ActionClearHistory }
func (AddSnippet) Action() Action        { return ActionAddSnippet }
func (RemoveSnippet) Action() Action     { return ActionRemoveSnippet }
func (Refresh) Action() Action           { return ActionRefresh }
func (UseSnippet) Action() Action        { return ActionUseSnippet }
func (PageActivated) Action() Action     { return ActionPageActivated }
func (QuickPaste) Action() Action        { return ActionQuickPaste }
func (PasteLast) Action() Action         { return ActionPasteLast }
func (HideQuickPaste) Action() Action    { return ActionHideQuickPaste }
func (MenuClick) Action() Action         { return ActionMenuClick }
func (SaveSettings) Action() Action      { return ActionSaveSettings }
func (ResetSettings) Action() Action     { return ActionResetSettings }
func (ClearAll) Action() Action          { return ActionClearAll }
func (ImportData) Action() Action        { return ActionImportData }

func (r AddToHistory) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleAddToHistory(ctx, r)
}

func (r RemoveFromHistory) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleRemoveFromHistory(ctx, r)
}

func (r TogglePin) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleTogglePin(ctx, r)
}

func (r ClearHistory) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleClearHistory(ctx, r)
}

func (r AddSnippet) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleAddSnippet(ctx, r)
}

func (r RemoveSnippet) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleRemoveSnippet(ctx, r)
}

func (r Refresh) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleRefresh(ctx, r)
}

func (r UseSnippet) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleUseSnippet(ctx, r)
}

func (r PageActivated) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandlePageActivated(ctx, r)
}

func (r QuickPaste) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleQuickPaste(ctx, r)
}

func (r PasteLast) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandlePasteLast(ctx, r)
}

func (r HideQuickPaste) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleHideQuickPaste(ctx, r)
}

func (r MenuClick) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleMenuClick(ctx, r)
}

func (r SaveSettings) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleSaveSettings(ctx, r)
}

func (r ResetSettings) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleResetSettings(ctx, r)
}

func (r ClearAll) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleClearAll(ctx, r)
}

func (r ImportData) Dispatch(ctx context.Context, h Handler) Response {
	return h.HandleImportData(ctx, r)
}

func (AddToHistory) sealed()      {}
func (RemoveFromHistory) sealed() {}
func (TogglePin) sealed()         {}
func (ClearHistory) sealed()      {}
func (AddSnippet) sealed()        {}
func (RemoveSnippet) sealed()     {}
func (Refresh) sealed()           {}
func (UseSnippet) sealed()        {}
func (PageActivated) sealed()     {}
func (QuickPaste) sealed()        {}
func (PasteLast) sealed()         {}
func (HideQuickPaste) sealed()    {}
func (MenuClick) sealed()         {}
func (SaveSettings) sealed()      {}
func (ResetSettings) sealed()     {}
func (ClearAll) sealed()          {}
func (ImportData) sealed()        {}

// decoders maps each tag to a constructor that unmarshals the flat object.
var decoders = map[Action]func([]byte) (Request, error){
	ActionAddToHistory:      decodeAs[AddToHistory],
	ActionRemoveFromHistory: decodeAs[RemoveFromHistory],
	ActionTogglePin:         decodeAs[TogglePin],
	ActionClearHistory:      decodeAs[ClearHistory],
	ActionAddSnippet:        decodeAs[AddSnippet],
	ActionRemoveSnippet:     decodeAs[RemoveSnippet],
	ActionRefresh:           decodeAs[Refresh],
	ActionUseSnippet:        decodeAs[UseSnippet],
	ActionPageActivated:     decodeAs[PageActivated],
	ActionQuickPaste:        decodeAs[QuickPaste],
	ActionPasteLast:         decodeAs[PasteLast],
	ActionHideQuickPaste:    decodeAs[HideQuickPaste],
	ActionMenuClick:         decodeAs[MenuClick],
	ActionSaveSettings:      decodeAs[SaveSettings],
	ActionResetSettings:     decodeAs[ResetSettings],
	ActionClearAll:          decodeAs[ClearAll],
	ActionImportData:        decodeAs[ImportData],
}

func decodeAs[T Request](b []byte) (Request, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeRequest parses a tagged request object.
func DecodeRequest(b []byte) (Request, error) {
	var tag struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(b, &tag); err != nil {
		return nil, errors.Wrap(err, "request decode")
	}
	dec, ok := decoders[tag.Action]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAction, "%q", tag.Action)
	}
	r, err := dec(b)
	if err != nil {
		return nil, errors.Wrapf(err, "request decode %s", tag.Action)
	}
	return r, nil
}

// EncodeRequest serialises r as a flat object with its "action" tag.
func EncodeRequest(r Request) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "request encode")
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, errors.Wrap(err, "request encode")
	}
	tag, _ := json.Marshal(r.Action())
	fields["action"] = tag
	return json.Marshal(fields)
}

// Response answers every request.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK returns a successful response with no payload.
func OK() Response { return Response{Success: true} }

// OKWith returns a successful response carrying v as its data payload.
func OKWith(v any) Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return Fail(err)
	}
	return Response{Success: true, Data: raw}
}

// Fail returns a failed response carrying err's message.
func Fail(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// NotifyAction identifies a broadcast notification.
type NotifyAction string

const (
	NotifyHistoryUpdated  NotifyAction = "historyUpdated"
	NotifySnippetsUpdated NotifyAction = "snippetsUpdated"
	NotifyShowQuickPaste  NotifyAction = "showQuickPaste"
	NotifyPasteText       NotifyAction = "pasteText"
	NotifyHideQuickPaste  NotifyAction = "hideQuickPaste"
)

// PageDirected reports whether the notification is meant for the
// foreground page rather than every listener.
func (a NotifyAction) PageDirected() bool {
	switch a {
	case NotifyShowQuickPaste, NotifyPasteText, NotifyHideQuickPaste:
		return true
	}
	return false
}

// Notification is a fire-and-forget broadcast to attached contexts.
type Notification struct {
	Action NotifyAction `json:"action"`
	Text   string       `json:"text,omitempty"`
}

type senderKey struct{}

// WithSender annotates ctx with the ID of the subscriber that issued the
// request being dispatched.
func WithSender(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, senderKey{}, id)
}

// SenderOf returns the subscriber ID stored by WithSender, or "".
func SenderOf(ctx context.Context) string {
	id, _ := ctx.Value(senderKey{}).(string)
	return id
}
