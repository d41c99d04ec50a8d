package taxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tax-intake/internal/model"
)

func (c *httpClient) GetConfigurationData(ctx context.Context) (*model.ConfigurationData, error) {
	body, err := c.get(ctx, c.apiURL("/getConfigurationData", nil))
	if err != nil {
		return nil, eris.Wrap(err, "taxapi: get configuration data")
	}
	cfg, err := decode[model.ConfigurationData](body, "configuration data")
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *httpClient) GetFilesInfo(ctx context.Context, customer string) ([]model.Document, error) {
	body, err := c.get(ctx, c.apiURL("/getFilesInfo", customerQuery(customer)))
	if err != nil {
		return nil, eris.Wrap(err, "taxapi: get files info")
	}
	return decode[[]model.Document](body, "files info")
}

type uploadMetadata struct {
	Customer       string `json:"customerDataEntryName"`
	Password       string `json:"password"`
	ReplacedFileID string `json:"replacedFileId"`
	ImageHash      string `json:"imageHash"`
}

func (c *httpClient) UploadFile(ctx context.Context, req UploadRequest) ([]model.Document, error) {
	meta, err := json.Marshal(uploadMetadata{
		Customer:       req.Customer,
		Password:       req.Password,
		ReplacedFileID: req.ReplacedFileID,
		ImageHash:      req.ImageHash,
	})
	if err != nil {
		return nil, eris.Wrap(err, "taxapi: marshal upload metadata")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", req.FileName)
	if err != nil {
		return nil, eris.Wrap(err, "taxapi: create form file")
	}
	if _, err := part.Write(req.Content); err != nil {
		return nil, eris.Wrap(err, "taxapi: write form file")
	}
	if err := mw.WriteField("uploadFileRequest", string(meta)); err != nil {
		return nil, eris.Wrap(err, "taxapi: write upload metadata")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "taxapi: close multipart writer")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("/uploadFile", nil), &buf)
	if err != nil {
		return nil, eris.Wrap(err, "taxapi: create upload request")
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	body, _, err := c.send(httpReq)
	if err != nil {
		return nil, eris.Wrapf(err, "taxapi: upload %s", req.FileName)
	}
	return decode[[]model.Document](body, "upload response")
}

type updateFormRequest struct {
	Customer string         `json:"customerDataEntryName"`
	Form     model.Document `json:"formAsJSON"`
}

func (c *httpClient) UpdateForm(ctx context.Context, customer string, doc model.Document) ([]model.Document, error) {
	body, err := c.doJSON(ctx, http.MethodPost, c.apiURL("/updateForm", nil), updateFormRequest{
		Customer: customer,
		Form:     doc,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "taxapi: update form %s", doc.FileID)
	}
	return decode[[]model.Document](body, "update form response")
}

func (c *httpClient) DeleteFile(ctx context.Context, customer, fileID string) error {
	q := url.Values{"fileId": {fileID}, "customerDataEntryName": {customer}}
	if _, err := c.doJSON(ctx, http.MethodDelete, c.apiURL("/deleteFile", q), nil); err != nil {
		return eris.Wrapf(err, "taxapi: delete file %s", fileID)
	}
	return nil
}

func (c *httpClient) DeleteAllFiles(ctx context.Context, customer string) error {
	if _, err := c.doJSON(ctx, http.MethodDelete, c.apiURL("/deleteAllFiles", customerQuery(customer)), nil); err != nil {
		return eris.Wrap(err, "taxapi: delete all files")
	}
	return nil
}

func (c *httpClient) CreateForm(ctx context.Context, req CreateFormRequest) ([]model.Document, error) {
	body, err := c.doJSON(ctx, http.MethodPost, c.apiURL("/createForm", nil), req)
	if err != nil {
		return nil, eris.Wrapf(err, "taxapi: create form %s", req.FormType)
	}
	return decode[[]model.Document](body, "create form response")
}

func (c *httpClient) GetResultsInfo(ctx context.Context, customer string) ([]model.ResultDescriptor, error) {
	body, err := c.get(ctx, c.apiURL("/getResultsInfo", customerQuery(customer)))
	if err != nil {
		return nil, eris.Wrap(err, "taxapi: get results info")
	}
	return decode[[]model.ResultDescriptor](body, "results info")
}

type calculateTaxRequest struct {
	Customer string `json:"customerDataEntryName"`
	TaxYear  string `json:"taxYear"`
}

func (c *httpClient) CalculateTax(ctx context.Context, customer, taxYear string) ([]model.TaxResultRow, error) {
	body, err := c.doJSON(ctx, http.MethodPost, c.apiURL("/calculateTax", nil), calculateTaxRequest{
		Customer: customer,
		TaxYear:  taxYear,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "taxapi: calculate tax %s", taxYear)
	}
	return decode[[]model.TaxResultRow](body, "tax results")
}
