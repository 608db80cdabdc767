package grpc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// OrderServiceFile is the registered descriptor of shop/v1/order.proto, the
// file OrderServiceDesc names as its metadata.
var OrderServiceFile protoreflect.FileDescriptor

func init() {
	file, err := buildOrderServiceFile(protoregistry.GlobalFiles)
	if err != nil {
		panic(err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(file); err != nil {
		panic(fmt.Sprintf("register %s: %v", file.Path(), err))
	}
	OrderServiceFile = file
}

func buildOrderServiceFile(resolver protodesc.Resolver) (protoreflect.FileDescriptor, error) {
	empty := string(emptypb.File_google_protobuf_empty_proto.Path())
	wrappers := string(wrapperspb.File_google_protobuf_wrappers_proto.Path())
	structs := string(structpb.File_google_protobuf_struct_proto.Path())

	method := func(name string, in, out protoreflect.FullName) *descriptorpb.MethodDescriptorProto {
		return &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(name),
			InputType:  proto.String("." + string(in)),
			OutputType: proto.String("." + string(out)),
		}
	}
	emptyMsg := (&emptypb.Empty{}).ProtoReflect().Descriptor().FullName()
	stringMsg := (&wrapperspb.StringValue{}).ProtoReflect().Descriptor().FullName()
	structMsg := (&structpb.Struct{}).ProtoReflect().Descriptor().FullName()

	fd := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(OrderServiceDesc.Metadata.(string)),
		Package:    proto.String("shop.v1"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{empty, wrappers, structs},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("OrderService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("PlaceOrder", emptyMsg, structMsg),
				method("GetOrder", stringMsg, structMsg),
				method("ListOrders", structMsg, structMsg),
				method("CancelOrder", stringMsg, structMsg),
				method("ListAllOrders", structMsg, structMsg),
			},
		}},
	}
	file, err := protodesc.NewFile(fd, resolver)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", fd.GetName(), err)
	}
	return file, nil
}
