package docsdk

import (
	"context"
	"fmt"
)

const (
	v1Documents        = "/api/v1/documents"
	v1Document         = "/api/v1/documents/{id}"
	v1DocumentChildren = "/api/v1/documents/{id}/children"
)

// GetDocument fetches a document with its content in storage format
func (c *Client) GetDocument(ctx context.Context, id string) (doc *Document, err error) {
	if id == "" {
		return nil, fmt.Errorf("get document: %w", ErrDocumentNotFound)
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetSuccessResult(&doc).
		Get(v1Document)

	if err := handleAPIError(res, err, "get document"); err != nil {
		return nil, err
	}

	return doc, nil
}

// UpdateDocument writes a new version. A stale ExpectedVersion yields ErrVersionMismatch.
func (c *Client) UpdateDocument(ctx context.Context, params *UpdateParams) (result *WriteResult, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", params.ID).
		SetRetryCount(0).
		SetBody(params).
		SetSuccessResult(&result).
		Put(v1Document)

	if err := handleAPIError(res, err, "update document"); err != nil {
		return nil, err
	}

	return result, nil
}

// CreateDocument creates a page under ParentID, or at the space root when it is empty
func (c *Client) CreateDocument(ctx context.Context, params *CreateParams) (result *WriteResult, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetBody(params).
		SetSuccessResult(&result).
		Post(v1Documents)

	if err := handleAPIError(res, err, "create document"); err != nil {
		return nil, err
	}

	return result, nil
}

// ListChildren returns the direct children of a document, without content
func (c *Client) ListChildren(ctx context.Context, id string) ([]*Document, error) {
	var resp ChildrenResponse

	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetSuccessResult(&resp).
		Get(v1DocumentChildren)

	if err := handleAPIError(res, err, "list children"); err != nil {
		return nil, err
	}

	return resp.Children, nil
}
