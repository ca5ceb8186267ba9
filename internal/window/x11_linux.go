//go:build linux

package window

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// X11Lister enumerates windows through the EWMH _NET_CLIENT_LIST property
// of the root window. The X connection is opened lazily and reused.
type X11Lister struct {
	mu    sync.Mutex
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom
}

// NewLister returns the platform window lister.
func NewLister() Lister { return &X11Lister{} }

func (x *X11Lister) List(ctx context.Context) ([]Info, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.connect(); err != nil {
		return nil, err
	}

	clients, err := x.windowList()
	if err != nil {
		return nil, err
	}

	out := make([]Info, 0, len(clients))
	for _, w := range clients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bounds, err := x.bounds(w)
		if err != nil {
			// windows can vanish between listing and querying
			continue
		}
		out = append(out, Info{
			ID:       uint32(w),
			Title:    x.title(w),
			Owner:    x.className(w),
			OwnerPID: x.pid(w),
			Bounds:   bounds,
		})
	}
	return out, nil
}

// Close releases the X connection.
func (x *X11Lister) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.conn != nil {
		x.conn.Close()
		x.conn = nil
	}
}

func (x *X11Lister) connect() error {
	if x.conn != nil {
		return nil
	}
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("connect to X server: %w", err)
	}
	x.conn = conn
	x.root = xproto.Setup(conn).DefaultScreen(conn).Root
	x.atoms = make(map[string]xproto.Atom)
	return nil
}

func (x *X11Lister) atom(name string) (xproto.Atom, error) {
	if a, ok := x.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(x.conn, true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern atom %s: %w", name, err)
	}
	x.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func (x *X11Lister) property(w xproto.Window, name string) (*xproto.GetPropertyReply, error) {
	a, err := x.atom(name)
	if err != nil {
		return nil, err
	}
	if a == xproto.AtomNone {
		return nil, fmt.Errorf("atom %s not defined", name)
	}
	return xproto.GetProperty(x.conn, false, w, a, xproto.GetPropertyTypeAny, 0, 1<<16).Reply()
}

func (x *X11Lister) windowList() ([]xproto.Window, error) {
	reply, err := x.property(x.root, "_NET_CLIENT_LIST")
	if err != nil {
		return nil, fmt.Errorf("read _NET_CLIENT_LIST: %w", err)
	}
	ids := make([]xproto.Window, 0, reply.ValueLen)
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		ids = append(ids, xproto.Window(xgb.Get32(reply.Value[i:])))
	}
	return ids, nil
}

func (x *X11Lister) bounds(w xproto.Window) (image.Rectangle, error) {
	geom, err := xproto.GetGeometry(x.conn, xproto.Drawable(w)).Reply()
	if err != nil {
		return image.Rectangle{}, err
	}
	pos, err := xproto.TranslateCoordinates(x.conn, w, x.root, 0, 0).Reply()
	if err != nil {
		return image.Rectangle{}, err
	}
	origin := image.Pt(int(pos.DstX), int(pos.DstY))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(int(geom.Width), int(geom.Height)))}, nil
}

func (x *X11Lister) title(w xproto.Window) string {
	if reply, err := x.property(w, "_NET_WM_NAME"); err == nil && len(reply.Value) > 0 {
		return string(reply.Value)
	}
	if reply, err := x.property(w, "WM_NAME"); err == nil {
		return string(reply.Value)
	}
	return ""
}

// className returns the WM_CLASS class part, the closest X11 has to an
// owning application name.
func (x *X11Lister) className(w xproto.Window) string {
	reply, err := x.property(w, "WM_CLASS")
	if err != nil {
		return ""
	}
	return parseWMClass(reply.Value)
}

func (x *X11Lister) pid(w xproto.Window) int {
	reply, err := x.property(w, "_NET_WM_PID")
	if err != nil || len(reply.Value) < 4 {
		return 0
	}
	return int(xgb.Get32(reply.Value))
}
