// Package domain contains the topology entities of the coordinator: ids,
// hierarchical element addresses and the declarative room specs.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type (
	RoomID     string
	MemberID   string
	EndpointID string
)

// PeerID identifies one side of a negotiated pairing. Both sides of a pair
// have distinct ids.
type PeerID uint64

func (id PeerID) String() string { return strconv.FormatUint(uint64(id), 10) }

// TrackID is shared by the sending and receiving side of a Track.
type TrackID uint64

func (id TrackID) String() string { return strconv.FormatUint(uint64(id), 10) }

// FID is a hierarchical element address: "room", "room/member" or
// "room/member/endpoint".
type FID struct {
	Room     RoomID
	Member   MemberID
	Endpoint EndpointID
}

func ParseFID(s string) (FID, error) {
	if s == "" {
		return FID{}, fmt.Errorf("%w: empty", ErrInvalidFID)
	}
	parts := strings.Split(s, "/")
	if len(parts) > 3 {
		return FID{}, fmt.Errorf("%w: %q has too many segments", ErrInvalidFID, s)
	}
	for _, p := range parts {
		if p == "" {
			return FID{}, fmt.Errorf("%w: %q has an empty segment", ErrInvalidFID, s)
		}
	}
	fid := FID{Room: RoomID(parts[0])}
	if len(parts) > 1 {
		fid.Member = MemberID(parts[1])
	}
	if len(parts) > 2 {
		fid.Endpoint = EndpointID(parts[2])
	}
	return fid, nil
}

func RoomFID(room RoomID) FID { return FID{Room: room} }

func MemberFID(room RoomID, member MemberID) FID { return FID{Room: room, Member: member} }

func EndpointFID(room RoomID, member MemberID, endpoint EndpointID) FID {
	return FID{Room: room, Member: member, Endpoint: endpoint}
}

func (f FID) IsRoom() bool     { return f.Member == "" }
func (f FID) IsMember() bool   { return f.Member != "" && f.Endpoint == "" }
func (f FID) IsEndpoint() bool { return f.Endpoint != "" }

func (f FID) String() string {
	var b strings.Builder
	b.WriteString(string(f.Room))
	if f.Member != "" {
		b.WriteByte('/')
		b.WriteString(string(f.Member))
	}
	if f.Endpoint != "" {
		b.WriteByte('/')
		b.WriteString(string(f.Endpoint))
	}
	return b.String()
}

const localScheme = "local://"

// SrcURI points a Play endpoint at a Publish endpoint:
// "local://room/member/endpoint".
type SrcURI struct {
	Room     RoomID
	Member   MemberID
	Endpoint EndpointID
}

func ParseSrcURI(s string) (SrcURI, error) {
	rest, ok := strings.CutPrefix(s, localScheme)
	if !ok {
		return SrcURI{}, fmt.Errorf("%w: source %q must use %s scheme", ErrInvalidSpec, s, localScheme)
	}
	fid, err := ParseFID(rest)
	if err != nil {
		return SrcURI{}, err
	}
	if !fid.IsEndpoint() {
		return SrcURI{}, fmt.Errorf("%w: source %q must address an endpoint", ErrInvalidSpec, s)
	}
	return SrcURI{Room: fid.Room, Member: fid.Member, Endpoint: fid.Endpoint}, nil
}

func (u SrcURI) FID() FID { return EndpointFID(u.Room, u.Member, u.Endpoint) }

func (u SrcURI) String() string { return localScheme + u.FID().String() }
