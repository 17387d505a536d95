// Package certmsg provides accessors over the certmsg.capnp schema.
// The layout matches what capnpc-go produces for the schema, so regenerating must not
// change the wire format.
package certmsg

import (
	capnp "capnproto.org/go/capnp/v3"
)

var (
	headerSize      = capnp.ObjectSize{DataSize: 8, PointerCount: 3}
	certificateSize = capnp.ObjectSize{DataSize: 0, PointerCount: 3}
)

type Header capnp.Struct

func NewHeader(s *capnp.Segment) (Header, error) {
	st, err := capnp.NewStruct(s, headerSize)
	return Header(st), err
}

func NewRootHeader(s *capnp.Segment) (Header, error) {
	st, err := capnp.NewRootStruct(s, headerSize)
	return Header(st), err
}

func ReadRootHeader(msg *capnp.Message) (Header, error) {
	root, err := msg.Root()
	return Header(root.Struct()), err
}

func (s Header) Round() uint64 {
	return capnp.Struct(s).Uint64(0)
}

func (s Header) SetRound(v uint64) {
	capnp.Struct(s).SetUint64(0, v)
}

func (s Header) Author() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return []byte(p.Data()), err
}

func (s Header) SetAuthor(v []byte) error {
	return capnp.Struct(s).SetData(0, v)
}

func (s Header) Transmissions() (capnp.DataList, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return capnp.DataList(p.List()), err
}

func (s Header) NewTransmissions(n int32) (capnp.DataList, error) {
	return newDataList(capnp.Struct(s), 1, n)
}

func (s Header) Parents() (capnp.DataList, error) {
	p, err := capnp.Struct(s).Ptr(2)
	return capnp.DataList(p.List()), err
}

func (s Header) NewParents(n int32) (capnp.DataList, error) {
	return newDataList(capnp.Struct(s), 2, n)
}

type Certificate capnp.Struct

func NewRootCertificate(s *capnp.Segment) (Certificate, error) {
	st, err := capnp.NewRootStruct(s, certificateSize)
	return Certificate(st), err
}

func ReadRootCertificate(msg *capnp.Message) (Certificate, error) {
	root, err := msg.Root()
	return Certificate(root.Struct()), err
}

func (s Certificate) Header() (Header, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return Header(p.Struct()), err
}

func (s Certificate) HasHeader() bool {
	return capnp.Struct(s).HasPtr(0)
}

func (s Certificate) NewHeader() (Header, error) {
	ss, err := NewHeader(capnp.Struct(s).Segment())
	if err != nil {
		return Header{}, err
	}
	err = capnp.Struct(s).SetPtr(0, capnp.Struct(ss).ToPtr())
	return ss, err
}

func (s Certificate) Signers() (capnp.DataList, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return capnp.DataList(p.List()), err
}

func (s Certificate) NewSigners(n int32) (capnp.DataList, error) {
	return newDataList(capnp.Struct(s), 1, n)
}

func (s Certificate) Signatures() (capnp.DataList, error) {
	p, err := capnp.Struct(s).Ptr(2)
	return capnp.DataList(p.List()), err
}

func (s Certificate) NewSignatures(n int32) (capnp.DataList, error) {
	return newDataList(capnp.Struct(s), 2, n)
}

func newDataList(st capnp.Struct, ptr uint16, n int32) (capnp.DataList, error) {
	l, err := capnp.NewDataList(st.Segment(), n)
	if err != nil {
		return capnp.DataList{}, err
	}
	err = st.SetPtr(ptr, l.ToPtr())
	return l, err
}
