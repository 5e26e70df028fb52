package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"visaflow/intake/services"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
		headers:  nil,
		json:     nil,
		body:     nil,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

func (r *httpTestRequest) send() (*httptest.ResponseRecorder, error) {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return nil, fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	return w, nil
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	w, err := r.send()
	if err != nil {
		return err
	}

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

// DoFieldErrors expects the request to fail validation and returns the
// per-field errors from the response body.
func (r *httpTestRequest) DoFieldErrors() (map[string]string, error) {
	w, err := r.send()
	if err != nil {
		return nil, err
	}

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("%v request to endpoint %v returned status %d, content '%v', expected validation failure", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	var body struct {
		FieldErrors map[string]string `json:"field_errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("error parsing field errors from endpoint %v: %w", r.endpoint, err)
	}

	return body.FieldErrors, nil
}

var ErrUnauthorized = errors.New("unauthorized")

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) signup(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["access_token"]
	c.userId = res["user_id"]

	return nil
}

func (c *client) addUser(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/user/create").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) deleteUser(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v", userId)).Do(nil)
}

func (c *client) promoteAdmin(userId string) error {
	return c.Post(fmt.Sprintf("/user/%v/admin", userId)).Do(nil)
}

func (c *client) demoteAdmin(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v/admin", userId)).Do(nil)
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/user/list").Do(&res)
	return res, err
}

func (c *client) userInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/user/info").Do(&res)
	return res, err
}

type documentEntry struct {
	DocType string `json:"doc_type"`
	FileRef string `json:"file_ref"`
}

func (c *client) submitApplication(applicant map[string]interface{}, documents []documentEntry) (string, error) {
	body := make(map[string]interface{}, len(applicant)+1)
	for k, v := range applicant {
		body[k] = v
	}
	if documents != nil {
		body["documents"] = documents
	}

	var res map[string]string
	err := c.Post("/application/submit").Json(body).Do(&res)
	return res["application_id"], err
}

func (c *client) listApplications() ([]services.ApplicationInfo, error) {
	var res []services.ApplicationInfo
	err := c.Get("/application/list").Do(&res)
	return res, err
}

func (c *client) getApplication(applicationId string) (services.ApplicationInfo, error) {
	var res services.ApplicationInfo
	err := c.Get(fmt.Sprintf("/application/%v", applicationId)).Do(&res)
	return res, err
}

func (c *client) attachDocument(applicationId, documentId string) error {
	body := map[string]string{"document_id": documentId}
	return c.Post(fmt.Sprintf("/application/%v/documents", applicationId)).Json(body).Do(nil)
}

type multipartField struct {
	name  string
	value string
}

type multipartFile struct {
	field    string
	filename string
	content  []byte
}

func buildMultipartBody(fields []multipartField, files []multipartFile) (io.Reader, string, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	for _, field := range fields {
		if err := writer.WriteField(field.name, field.value); err != nil {
			return nil, "", err
		}
	}

	for _, file := range files {
		part, err := writer.CreateFormFile(file.field, file.filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.content); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

func (c *client) submitApplicationForm(fields []multipartField, files []multipartFile) (string, error) {
	body, contentType, err := buildMultipartBody(fields, files)
	if err != nil {
		return "", err
	}

	var res map[string]string
	err = c.Post("/application/submit-form").Header("Content-Type", contentType).Body(body).Do(&res)
	return res["application_id"], err
}

type paymentResult struct {
	PaymentId string `json:"payment_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

func (c *client) submitPayment(applicationId, amount string) (paymentResult, error) {
	body := map[string]string{"amount": amount}

	var res paymentResult
	err := c.Post(fmt.Sprintf("/payment/%v", applicationId)).Json(body).Do(&res)
	return res, err
}

func (c *client) uploadDocument(docType, filename string, content []byte) (string, error) {
	body, contentType, err := buildMultipartBody(
		[]multipartField{{name: "doc_type", value: docType}},
		[]multipartFile{{field: "file", filename: filename, content: content}},
	)
	if err != nil {
		return "", err
	}

	var res map[string]string
	err = c.Post("/document/upload").Header("Content-Type", contentType).Body(body).Do(&res)
	return res["document_id"], err
}

func (c *client) downloadDocument(documentId string) ([]byte, error) {
	endpoint := fmt.Sprintf("/document/%v", documentId)
	req := httptest.NewRequest("GET", endpoint, nil)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.authToken))
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("get %v failed with status %d and res '%v'", endpoint, res.StatusCode, w.Body.String())
	}

	return w.Body.Bytes(), nil
}

func (c *client) listAllApplications() ([]services.ApplicationInfo, error) {
	var res []services.ApplicationInfo
	err := c.Get("/staff/applications").Do(&res)
	return res, err
}

func (c *client) updateStatus(applicationId, status string) error {
	body := map[string]string{"status": status}
	return c.Post(fmt.Sprintf("/staff/applications/%v/status", applicationId)).Json(body).Do(nil)
}

func (c *client) assignOperator(applicationId, operatorId string) error {
	body := map[string]string{"operator_id": operatorId}
	return c.Post(fmt.Sprintf("/staff/applications/%v/operator", applicationId)).Json(body).Do(nil)
}

func (c *client) deleteApplication(applicationId string) error {
	return c.Delete(fmt.Sprintf("/staff/applications/%v", applicationId)).Do(nil)
}

func (c *client) createOperator(firstName, lastName, email, accessLevel string) (string, error) {
	body := map[string]string{
		"first_name": firstName, "last_name": lastName, "email": email, "access_level": accessLevel,
	}

	var res map[string]string
	err := c.Post("/staff/operators").Json(body).Do(&res)
	return res["operator_id"], err
}

func (c *client) listOperators() ([]services.OperatorInfo, error) {
	var res []services.OperatorInfo
	err := c.Get("/staff/operators").Do(&res)
	return res, err
}
