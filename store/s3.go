package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	raven "github.com/getsentry/raven-go"
)

// An S3 store keeps its streams in an S3 bucket. A prefix is prepended
// to every key so more than one store can share a bucket. Do not change
// Bucket or Prefix concurrently with calls using the structure.
type S3 struct {
	svc    *s3.S3
	Bucket string
	Prefix string
	sizes  *sizecache // remembered HEAD results
}

var (
	// ErrNotExist means the key does not exist in the store
	ErrNotExist = errors.New("key does not exist")

	// ErrNoETag means AWS accepted an upload part without returning an ETag
	ErrNoETag = errors.New("no ETag was returned from AWS")
)

// NewS3 returns a store on the given bucket. The credentials in the
// session are used for every access.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	return &S3{
		Bucket: bucket,
		Prefix: prefix,
		svc:    s3.New(awsSession),
		sizes:  newSizeCache(),
	}
}

// List returns every key in this store. Keys outside the store's prefix
// are not visible, so a shared bucket is fine.
func (s *S3) List() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(s.Bucket),
			Prefix: aws.String(s.Prefix),
		}
		err := s.svc.ListObjectsV2Pages(input,
			func(page *s3.ListObjectsV2Output, lastpage bool) bool {
				for _, item := range page.Contents {
					out <- strings.TrimPrefix(*item.Key, s.Prefix)
				}
				return !lastpage
			})
		if err != nil {
			log.Println("S3 List:", s.Prefix, err)
			raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix})
		}
	}()
	return out
}

// ListPrefix returns the keys in this store beginning with prefix.
func (s *S3) ListPrefix(prefix string) ([]string, error) {
	var result []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix + prefix),
	}
	err := s.svc.ListObjectsV2Pages(input,
		func(page *s3.ListObjectsV2Output, lastpage bool) bool {
			for _, item := range page.Contents {
				result = append(result, strings.TrimPrefix(*item.Key, s.Prefix))
			}
			return !lastpage
		})
	if err != nil {
		log.Println("S3 ListPrefix:", s.Prefix, prefix, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Pattern": prefix})
	}
	return result, err
}

// Open returns a reader over the content of key. Data is paged in with
// ranged GETs as it is read, which suits the strided access the pixel
// decoder makes.
func (s *S3) Open(key string) (ReadAtCloser, int64, error) {
	size, err := s.stat(key)
	if err != nil {
		return nil, 0, err
	}
	result := &s3ReadAtCloser{
		svc:    s.svc,
		bucket: s.Bucket,
		key:    s.Prefix + key,
		size:   size,
	}
	return result, size, nil
}

// Create returns a writer uploading content to key. Small streams go up
// as one PUT; anything over a part size switches to a multipart upload.
func (s *S3) Create(key string) (io.WriteCloser, error) {
	_, err := s.stat(key)
	if err == nil {
		return nil, ErrKeyExists
	}
	s.sizes.Set(key, 0) // in case this key was previously deleted
	return &s3WriteCloser{
		svc:    s.svc,
		bucket: s.Bucket,
		key:    s.Prefix + key,
	}, nil
}

// Delete removes key from the store. It is not an error if the key
// doesn't exist.
func (s *S3) Delete(key string) error {
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		log.Println("S3 Delete:", s.Prefix, key, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
	} else {
		s.sizes.Set(key, sizeDeleted)
	}
	return err
}

// stat returns the size of key, or an error if it does not exist.
// Sizes are cached, which cuts down on HEAD requests considerably.
func (s *S3) stat(key string) (int64, error) {
	return s.sizes.Get(key, s.stat0)
}

func (s *S3) stat0(key string) (int64, error) {
	info, err := s.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		return 0, err
	}
	return *info.ContentLength, nil
}

// s3ReadAtCloser adapts ranged GETs to the ReadAt interface, keeping a
// small LRU of downloaded pages. In the expected case of a sequential
// read through the stream the pages are disjoint.
//
// Not safe for use from more than one goroutine.
type s3ReadAtCloser struct {
	svc    *s3.S3
	bucket string
	key    string
	pages  []s3Page
	size   int64
}

type s3Page struct {
	data   []byte
	offset int64
}

func (rac *s3ReadAtCloser) ReadAt(p []byte, offset int64) (int, error) {
	var err error
	startOffset := offset
	for len(p) > 0 {
		if offset >= rac.size {
			break
		}
		var page s3Page
		page, err = rac.getpage(offset)
		if err != nil {
			// keep whatever was copied on a previous pass
			break
		}
		n := copy(p, page.data[offset-page.offset:])
		p = p[n:]
		offset += int64(n)
	}
	// Hold back an EOF if data was copied; report one if nothing was.
	if err == io.EOF && startOffset != offset {
		err = nil
	} else if err == nil && startOffset == offset {
		err = io.EOF
	}
	return int(offset - startOffset), err
}

// number of pages kept before evicting the least recently used
const defaultNumPages = 5

// getpage returns the cached page covering offset, loading it if need be.
func (rac *s3ReadAtCloser) getpage(offset int64) (s3Page, error) {
	i := rac.findpage(offset)
	if i == -1 {
		page, err := rac.loadpage(offset)
		if err != nil {
			return s3Page{}, err
		}
		if len(rac.pages) < defaultNumPages {
			rac.pages = append(rac.pages, page)
		}
		i = len(rac.pages) - 1
		rac.pages[i] = page
	}
	page := rac.pages[i]
	if i > 0 {
		// move to the front of the cache
		copy(rac.pages[1:], rac.pages[:i])
		rac.pages[0] = page
	}
	return page, nil
}

func (rac *s3ReadAtCloser) findpage(offset int64) int {
	for i, page := range rac.pages {
		base := page.offset
		limit := base + int64(len(page.data))
		if base <= offset && offset < limit {
			return i
		}
	}
	return -1
}

const defaultPageSize = 10 * 1024 * 1024 // 10 MiB

// loadpage reads one page from S3. Page starts are aligned to multiples
// of defaultPageSize, so pages in memory never overlap. A short page
// comes back at the end of the stream.
func (rac *s3ReadAtCloser) loadpage(offset int64) (s3Page, error) {
	startpos := (offset / defaultPageSize) * defaultPageSize
	endpos := startpos + defaultPageSize
	input := &s3.GetObjectInput{
		Bucket: aws.String(rac.bucket),
		Key:    aws.String(rac.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", startpos, endpos-1)),
	}
	output, err := rac.svc.GetObject(input)
	if err != nil {
		log.Println("S3 loadpage:", rac.key, offset, err)
		// an invalid range response means we read past the end
		e, ok := err.(awserr.RequestFailure)
		if ok && e.StatusCode() == http.StatusRequestedRangeNotSatisfiable {
			err = io.EOF
		}
		return s3Page{}, err
	}
	var data bytes.Buffer
	n, err := io.Copy(&data, output.Body)
	output.Body.Close()
	if n == 0 && err == nil {
		err = io.EOF
	}
	return s3Page{data: data.Bytes(), offset: startpos}, err
}

func (rac *s3ReadAtCloser) Close() error {
	return nil
}

// s3WriteCloser uploads a stream of unknown length. Content is buffered
// into parts of increasing size, so small metadata documents go up as a
// single PUT while payload streams well past 50 GB still fit under the
// AWS limit of 10000 parts.
type s3WriteCloser struct {
	svc      *s3.S3
	bucket   string
	key      string
	buf      bytes.Buffer
	isMulti  bool
	uploadID string
	part     int      // 0-based part being filled. AWS part numbers are 1-based.
	etags    []string // etag for each uploaded part
	abort    bool     // a Write failed; drop everything at Close
}

const (
	wcBaseSize = 64 * 1024 * 1024
	wcMaxSize  = 4 * 1024 * 1024 * 1024
)

func (wc *s3WriteCloser) Write(p []byte) (int, error) {
	n, err := wc.buf.Write(p)
	if n == 0 && err != nil {
		wc.abort = true
		return n, err
	}
	// part thresholds double from wcBaseSize up to wcMaxSize
	limit := wcMaxSize
	if wc.part < 6 {
		limit = wcBaseSize << wc.part
	}
	if wc.buf.Len() > limit {
		err = wc.uploadpart(wc.part, &wc.buf)
		wc.buf.Reset()
		if err != nil {
			wc.abort = true
			return 0, err
		}
		wc.part++
	}
	return n, nil
}

// Close flushes the final buffer. If any Write failed the whole upload
// is abandoned, so a partial stream never lands under the key.
func (wc *s3WriteCloser) Close() error {
	if !wc.isMulti {
		if wc.abort {
			return nil
		}
		return wc.uploadfull(&wc.buf)
	}
	var err error
	if !wc.abort && wc.buf.Len() > 0 {
		err = wc.uploadpart(wc.part, &wc.buf)
		if err != nil {
			wc.abort = true
		}
	}
	if wc.abort {
		_, err2 := wc.svc.AbortMultipartUpload(&s3.AbortMultipartUploadInput{
			Bucket:   aws.String(wc.bucket),
			Key:      aws.String(wc.key),
			UploadId: aws.String(wc.uploadID),
		})
		if err2 != nil {
			log.Println("S3 Abort Close:", wc.key, err2)
		}
		if err == nil {
			err = err2
		}
		return err
	}
	err = wc.finishMultipart()
	if err != nil {
		log.Println("S3 Complete Close:", wc.key, err)
	}
	return err
}

func (wc *s3WriteCloser) startMultipart() error {
	if wc.isMulti {
		return nil
	}
	result, err := wc.svc.CreateMultipartUpload(&s3.CreateMultipartUploadInput{
		Bucket: aws.String(wc.bucket),
		Key:    aws.String(wc.key),
	})
	if err != nil {
		log.Println("S3 startMultipart:", wc.key, err)
		raven.CaptureError(err, map[string]string{"Bucket": wc.bucket, "Key": wc.key})
		return err
	}
	wc.isMulti = true
	wc.uploadID = *result.UploadId
	return nil
}

func (wc *s3WriteCloser) finishMultipart() error {
	var completed []*s3.CompletedPart
	for i, etag := range wc.etags {
		completed = append(completed, &s3.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int64(int64(i + 1)),
		})
	}
	_, err := wc.svc.CompleteMultipartUpload(
		&s3.CompleteMultipartUploadInput{
			Bucket:   aws.String(wc.bucket),
			Key:      aws.String(wc.key),
			UploadId: aws.String(wc.uploadID),
			MultipartUpload: &s3.CompletedMultipartUpload{
				Parts: completed,
			},
		})
	return err
}

func (wc *s3WriteCloser) uploadpart(partno int, buf *bytes.Buffer) error {
	err := wc.startMultipart()
	if err != nil {
		return err
	}
	input := &s3.UploadPartInput{
		Body:       bytes.NewReader(buf.Bytes()), // UploadPart needs Seek
		Bucket:     aws.String(wc.bucket),
		Key:        aws.String(wc.key),
		PartNumber: aws.Int64(int64(partno + 1)),
		UploadId:   aws.String(wc.uploadID),
	}
	output, err := wc.svc.UploadPart(input)
	if err != nil {
		log.Println("S3 uploadpart:", wc.key, partno+1, err)
		return err
	}
	if output.ETag == nil {
		log.Println("S3 nil ETag for part", partno, "key=", wc.key)
		return ErrNoETag
	}
	wc.etags = append(wc.etags, *output.ETag)
	return nil
}

func (wc *s3WriteCloser) uploadfull(buf *bytes.Buffer) error {
	source := bytes.NewReader(buf.Bytes()) // PutObject needs Seek
	input := &s3.PutObjectInput{
		Body:          source,
		Bucket:        aws.String(wc.bucket),
		Key:           aws.String(wc.key),
		ContentLength: aws.Int64(int64(source.Len())),
	}
	_, err := wc.svc.PutObject(input)
	if err != nil {
		log.Println("S3 uploadfull:", wc.key, err)
	}
	return err
}
