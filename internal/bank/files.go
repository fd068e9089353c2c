package bank

import (
	"os"
	"path/filepath"

	"osscprep/internal/models"
	contextutils "osscprep/internal/utils"
)

// OpenCorpus loads the corpus at path, or the embedded sample when path is
// empty.
func OpenCorpus(path string) (*Corpus, error) {
	if path == "" {
		return DefaultCorpus()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to open corpus %s: %v", path, err)
	}
	defer f.Close()
	return LoadCorpus(f)
}

// OpenTopicMapping loads a precomputed mapping. An empty path returns a nil
// mapping, which New builds from the corpus.
func OpenTopicMapping(path string) (TopicMapping, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to open topic mapping %s: %v", path, err)
	}
	defer f.Close()
	return LoadTopicMapping(f)
}

// SaveCorpus replaces the corpus file at path. The document is written to a
// temporary file in the same directory and renamed over the old one.
func SaveCorpus(path string, questions []*models.Question) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create temp corpus: %v", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = WriteCorpus(tmp, questions); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to close temp corpus: %v", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to replace corpus %s: %v", path, err)
	}
	return nil
}
