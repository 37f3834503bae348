package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/kwsg/marketplace-backend/internal/catalog"
)

// catalogStatusError maps content-store errors to HTTP errors.
func catalogStatusError(err error) huma.StatusError {
	if errors.Is(err, catalog.ErrNotFound) {
		return huma.NewError(http.StatusNotFound, "record not found")
	}
	return huma.NewError(http.StatusBadGateway, "content store request failed")
}

// registerAdminVendors registers vendor CRUD. The API registered here sits
// behind the admin guard middleware.
func (s *Server) registerAdminVendors(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listVendors",
		Method:      http.MethodGet,
		Path:        "/api/admin/vendors",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *struct{}) (*ListVendorsOutput, error) {
		vendors, err := s.content.ListVendors(ctx)
		if err != nil {
			return nil, catalogStatusError(err)
		}
		out := &ListVendorsOutput{}
		out.Body.Vendors = vendors
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getVendor",
		Method:      http.MethodGet,
		Path:        "/api/admin/vendors/{id}",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *VendorIDInput) (*GetVendorOutput, error) {
		vendor, err := s.content.GetVendor(ctx, input.ID)
		if err != nil {
			return nil, catalogStatusError(err)
		}
		return &GetVendorOutput{Body: *vendor}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "saveVendor",
		Method:        http.MethodPost,
		Path:          "/api/admin/vendors",
		Tags:          []string{"Admin"},
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *SaveVendorInput) (*SaveVendorOutput, error) {
		if input.Body.Name == "" {
			return nil, huma.NewError(http.StatusBadRequest, "vendor name is required")
		}
		saved, err := s.content.SaveVendor(ctx, &input.Body)
		if err != nil {
			return nil, catalogStatusError(err)
		}
		return &SaveVendorOutput{Body: *saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "deleteVendor",
		Method:        http.MethodDelete,
		Path:          "/api/admin/vendors/{id}",
		Tags:          []string{"Admin"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *VendorIDInput) (*struct{}, error) {
		if err := s.content.DeleteVendor(ctx, input.ID); err != nil {
			return nil, catalogStatusError(err)
		}
		return &struct{}{}, nil
	})
}

// registerAdminStudios registers studio CRUD behind the admin guard.
func (s *Server) registerAdminStudios(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listStudios",
		Method:      http.MethodGet,
		Path:        "/api/admin/studios",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *struct{}) (*ListStudiosOutput, error) {
		studios, err := s.content.ListStudios(ctx)
		if err != nil {
			return nil, catalogStatusError(err)
		}
		out := &ListStudiosOutput{}
		out.Body.Studios = studios
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getStudio",
		Method:      http.MethodGet,
		Path:        "/api/admin/studios/{id}",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *StudioIDInput) (*GetStudioOutput, error) {
		studio, err := s.content.GetStudio(ctx, input.ID)
		if err != nil {
			return nil, catalogStatusError(err)
		}
		return &GetStudioOutput{Body: *studio}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "saveStudio",
		Method:        http.MethodPost,
		Path:          "/api/admin/studios",
		Tags:          []string{"Admin"},
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *SaveStudioInput) (*SaveStudioOutput, error) {
		if input.Body.Name == "" {
			return nil, huma.NewError(http.StatusBadRequest, "studio name is required")
		}
		saved, err := s.content.SaveStudio(ctx, &input.Body)
		if err != nil {
			return nil, catalogStatusError(err)
		}
		return &SaveStudioOutput{Body: *saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "deleteStudio",
		Method:        http.MethodDelete,
		Path:          "/api/admin/studios/{id}",
		Tags:          []string{"Admin"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *StudioIDInput) (*struct{}, error) {
		if err := s.content.DeleteStudio(ctx, input.ID); err != nil {
			return nil, catalogStatusError(err)
		}
		return &struct{}{}, nil
	})
}
