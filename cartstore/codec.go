// cartstore/codec.go

package cartstore

import (
	"encoding/json"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/norun9/rocketshoes-cart/cart"
)

// Codec turns a cart into the blob kept in storage and back.
type Codec interface {
	Name() string
	Marshal(c cart.Cart) ([]byte, error)
	Unmarshal(data []byte) (cart.Cart, error)
}

// CodecByName returns the codec registered under name ("json" or "proto").
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "proto":
		return ProtoCodec{}, nil
	default:
		return nil, errors.Errorf("unknown cart codec %q", name)
	}
}

// JSONCodec stores the cart as a JSON array of lines, the format the
// storefront keeps in browser storage.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(c cart.Cart) ([]byte, error) {
	if c == nil {
		c = cart.Cart{}
	}
	return json.Marshal(c)
}

func (JSONCodec) Unmarshal(data []byte) (cart.Cart, error) {
	var c cart.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c == nil {
		c = cart.Cart{}
	}
	return c, nil
}

// ProtoCodec stores the cart as a binary protobuf ListValue of Structs.
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return "proto" }

func (ProtoCodec) Marshal(c cart.Cart) ([]byte, error) {
	items := make([]interface{}, 0, len(c))
	for _, p := range c {
		items = append(items, map[string]interface{}{
			"id":     p.ID,
			"title":  p.Title,
			"price":  p.Price,
			"image":  p.Image,
			"amount": p.Amount,
		})
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, err
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(list)
}

func (ProtoCodec) Unmarshal(data []byte) (cart.Cart, error) {
	var list structpb.ListValue
	if err := proto.Unmarshal(data, &list); err != nil {
		return nil, err
	}

	c := make(cart.Cart, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, errors.Errorf("line %d is not a struct", i)
		}
		f := s.GetFields()
		c = append(c, cart.Product{
			ID:     int(f["id"].GetNumberValue()),
			Title:  f["title"].GetStringValue(),
			Price:  f["price"].GetNumberValue(),
			Image:  f["image"].GetStringValue(),
			Amount: int(f["amount"].GetNumberValue()),
		})
	}
	return c, nil
}
