package versions

import (
	"log"

	"gorm.io/gorm"
)

/*
 * The first schema revision linked each document directly to its application
 * with a document.application_id column, so a document could belong to only
 * one application. This migration moves those links into the
 * document_applications association table and drops the old column.
 */
func Migration_1_document_associations(txn *gorm.DB) error {
	type DocumentApplication struct {
		ApplicationId string `gorm:"type:uuid;primaryKey"`
		DocumentId    string `gorm:"type:uuid;primaryKey"`
	}

	type Document struct {
		ApplicationId string `gorm:"type:uuid"`
	}

	if err := txn.Migrator().CreateTable(&DocumentApplication{}); err != nil {
		return err
	}

	err := txn.Exec(
		"INSERT INTO document_applications (application_id, document_id) " +
			"SELECT application_id, id FROM documents WHERE application_id IS NOT NULL",
	).Error
	if err != nil {
		return err
	}

	if err := txn.Migrator().DropColumn(&Document{}, "application_id"); err != nil {
		return err
	}

	log.Println("moved document links into document_applications")

	return nil
}
